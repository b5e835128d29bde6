package handlers

import (
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/CzarCx/qr-brain/internal/service"

	"github.com/gin-gonic/gin"
)

// ProgrammedHandler serves programmed production, lotes and delivery imports
type ProgrammedHandler struct {
	service ScanService
}

// NewProgrammedHandler creates a new programmed production handler
func NewProgrammedHandler(svc ScanService) *ProgrammedHandler {
	return &ProgrammedHandler{service: svc}
}

// HandleAssignees lists the people with programmed production
func (h *ProgrammedHandler) HandleAssignees(c *gin.Context) {
	names, err := h.service.ProgrammedAssignees(c.Request.Context())
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, names)
}

// HandleLotes lists the programmed lotes
func (h *ProgrammedHandler) HandleLotes(c *gin.Context) {
	lotes, err := h.service.ProgrammedLotes(c.Request.Context())
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, lotes)
}

// HandleList lists programmed rows by ?name= or ?lote=
func (h *ProgrammedHandler) HandleList(c *gin.Context) {
	rows, err := h.service.ListProgrammed(c.Request.Context(), c.Query("name"), c.Query("lote"))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// HandleAssign moves programmed rows to a person
func (h *ProgrammedHandler) HandleAssign(c *gin.Context) {
	var req service.AssignProgrammedRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.service.AssignProgrammed(c.Request.Context(), req)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleLoteView returns the aggregated lote view
func (h *ProgrammedHandler) HandleLoteView(c *gin.Context) {
	lotes, err := h.service.LoteView(c.Request.Context())
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, lotes)
}

// HandleDeleteLote deletes every programmed row of a lote
func (h *ProgrammedHandler) HandleDeleteLote(c *gin.Context) {
	deleted, err := h.service.DeleteLote(c.Request.Context(), c.Param("lote"))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lote": c.Param("lote"), "deleted": deleted})
}

// HandleImportDeliveries marks the codes of an uploaded scanner CSV as delivered
func (h *ProgrammedHandler) HandleImportDeliveries(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		WriteError(c, NewValidationError("A CSV file is required", nil))
		return
	}

	file, err := header.Open()
	if err != nil {
		WriteError(c, NewValidationError(fmt.Sprintf("Could not open %s", header.Filename), nil))
		return
	}
	defer file.Close()

	stats, err := h.service.ImportDeliveries(c.Request.Context(), c.PostForm("operator"), filepath.Base(header.Filename), file)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

type notFoundRequest struct {
	Codes []string `json:"codes" validate:"required,min=1"`
}

// HandleNotFoundCSV renders unmatched codes for download
func (h *ProgrammedHandler) HandleNotFoundCSV(c *gin.Context) {
	var req notFoundRequest
	if !bindJSON(c, &req) {
		return
	}

	content, err := h.service.NotFoundCSV(req.Codes)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="codigos_no_encontrados.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", content)
}

// RegisterRoutes registers the handler's routes
func (h *ProgrammedHandler) RegisterRoutes(router *gin.RouterGroup) {
	programmed := router.Group("/programmed")
	{
		programmed.GET("", h.HandleList)
		programmed.GET("/assignees", h.HandleAssignees)
		programmed.GET("/lotes", h.HandleLotes)
		programmed.POST("/assign", h.HandleAssign)
	}

	router.GET("/lotes", h.HandleLoteView)
	router.DELETE("/lotes/:lote", h.HandleDeleteLote)

	router.POST("/deliveries/import", h.HandleImportDeliveries)
	router.POST("/deliveries/not-found.csv", h.HandleNotFoundCSV)
}
