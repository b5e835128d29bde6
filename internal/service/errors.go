package service

import (
	"fmt"

	"github.com/CzarCx/qr-brain/internal/repository"

	"github.com/pkg/errors"
)

// ValidationError is returned before any remote call when input is incomplete
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConfirmationRequiredError blocks a lote submission that would append to an existing lote
type ConfirmationRequiredError struct {
	Lote     string `json:"lote"`
	Existing int64  `json:"existing"`
	New      int    `json:"new"`
}

func (e *ConfirmationRequiredError) Error() string {
	return fmt.Sprintf("lote %s already has %d labels, confirm to add %d more", e.Lote, e.Existing, e.New)
}

// conflict marks err as a lost race with another writer
func conflict(msg string) error {
	return errors.Wrap(repository.ErrConflict, msg)
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
