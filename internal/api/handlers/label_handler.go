package handlers

import (
	"net/http"

	"github.com/CzarCx/qr-brain/internal/service"

	"github.com/gin-gonic/gin"
)

// LabelHandler serves single-label actions and cut verification
type LabelHandler struct {
	service ScanService
}

// NewLabelHandler creates a new label handler
func NewLabelHandler(svc ScanService) *LabelHandler {
	return &LabelHandler{service: svc}
}

// HandleAccept qualifies a label
func (h *LabelHandler) HandleAccept(c *gin.Context) {
	var req service.AcceptRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	if err := h.service.Accept(c.Request.Context(), c.Param("code"), req); err != nil {
		WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleReport flags a label with a reason
func (h *LabelHandler) HandleReport(c *gin.Context) {
	var req service.ReportRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.service.Report(c.Request.Context(), c.Param("code"), req); err != nil {
		WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleCancel cancels a label
func (h *LabelHandler) HandleCancel(c *gin.Context) {
	if err := h.service.Cancel(c.Request.Context(), c.Param("code")); err != nil {
		WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleUnassign deletes the assignment row of a label
func (h *LabelHandler) HandleUnassign(c *gin.Context) {
	if err := h.service.Unassign(c.Request.Context(), c.Param("code")); err != nil {
		WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandlePrintDate stamps the print date of a label
func (h *LabelHandler) HandlePrintDate(c *gin.Context) {
	if err := h.service.TouchPrintDate(c.Request.Context(), c.Param("code")); err != nil {
		WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleVerifyCut records the corte of a cut code
func (h *LabelHandler) HandleVerifyCut(c *gin.Context) {
	var req service.CutRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.service.VerifyCut(c.Request.Context(), c.Param("code"), req)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RegisterRoutes registers the handler's routes
func (h *LabelHandler) RegisterRoutes(router *gin.RouterGroup) {
	labels := router.Group("/labels/:code")
	{
		labels.POST("/accept", h.HandleAccept)
		labels.POST("/report", h.HandleReport)
		labels.POST("/cancel", h.HandleCancel)
		labels.DELETE("/assignment", h.HandleUnassign)
		labels.POST("/print-date", h.HandlePrintDate)
	}
	router.POST("/cuts/:code/verify", h.HandleVerifyCut)
}
