package handlers

import (
	"io"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
}

// ValidateStruct validates a struct using validation tags
func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// bindJSON decodes and validates the request body, writing the error response on failure
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		WriteError(c, NewValidationError("Invalid request body: "+err.Error(), nil))
		return false
	}
	if err := ValidateStruct(req); err != nil {
		WriteError(c, err)
		return false
	}
	return true
}

// bindOptionalJSON is bindJSON for endpoints whose body may be empty
func bindOptionalJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		WriteError(c, NewValidationError("Invalid request body: "+err.Error(), nil))
		return false
	}
	if err := ValidateStruct(req); err != nil {
		WriteError(c, err)
		return false
	}
	return true
}
