package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/CzarCx/qr-brain/internal/service"

	"github.com/gin-gonic/gin"
)

// SessionHandler serves the scanning stations
type SessionHandler struct {
	service ScanService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(svc ScanService) *SessionHandler {
	return &SessionHandler{service: svc}
}

// HandleStart opens a session for a station
func (h *SessionHandler) HandleStart(c *gin.Context) {
	var req service.StartSessionRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := h.service.StartSession(req)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// HandleGet returns the session snapshot
func (h *SessionHandler) HandleGet(c *gin.Context) {
	view, err := h.service.GetSession(c.Param("id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// HandleClear empties the pending list. With ?close=true the session is ended.
func (h *SessionHandler) HandleClear(c *gin.Context) {
	if c.Query("close") == "true" {
		if err := h.service.EndSession(c.Param("id")); err != nil {
			WriteError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
		return
	}

	view, err := h.service.ClearSession(c.Param("id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// HandleScan runs one scanned payload through the pipeline
func (h *SessionHandler) HandleScan(c *gin.Context) {
	var req service.ScanRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.service.ProcessScan(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type editItemRequest struct {
	EstiTime *int `json:"esti_time" validate:"omitempty,min=0"`
}

// HandleEditItem sets or clears the estimated minutes of a pending code
func (h *SessionHandler) HandleEditItem(c *gin.Context) {
	var req editItemRequest
	if !bindJSON(c, &req) {
		return
	}

	minutes := 0
	if req.EstiTime != nil {
		minutes = *req.EstiTime
	}

	view, err := h.service.EditItem(c.Param("id"), c.Param("code"), minutes)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// HandleRemoveItem drops a pending code
func (h *SessionHandler) HandleRemoveItem(c *gin.Context) {
	view, err := h.service.RemoveItem(c.Param("id"), c.Param("code"))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// HandleAssign commits the pending list to a person
func (h *SessionHandler) HandleAssign(c *gin.Context) {
	var req service.AssignRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.service.CommitToPerson(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleProgram stores the pending list as programmed production
func (h *SessionHandler) HandleProgram(c *gin.Context) {
	var req service.ProgramRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.service.ProgramLote(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleQualify qualifies the pending list under a lote
func (h *SessionHandler) HandleQualify(c *gin.Context) {
	var req service.QualifyRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.service.QualifyBatch(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleLoadLote merges the rows of a lote into the pending list
func (h *SessionHandler) HandleLoadLote(c *gin.Context) {
	result, err := h.service.LoadLote(c.Request.Context(), c.Param("id"), c.Param("lote"))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleDeliver marks the pending list as delivered
func (h *SessionHandler) HandleDeliver(c *gin.Context) {
	var req service.DeliverRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.service.Deliver(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleMarkPending moves the pending list to POR CALIFICAR
func (h *SessionHandler) HandleMarkPending(c *gin.Context) {
	result, err := h.service.MarkPending(c.Request.Context(), c.Param("id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleSubmit writes the pending list to the scan log
func (h *SessionHandler) HandleSubmit(c *gin.Context) {
	count, err := h.service.SubmitScans(c.Request.Context(), c.Param("id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submitted": count})
}

// HandleExport downloads the pending list as CSV
func (h *SessionHandler) HandleExport(c *gin.Context) {
	upload, _ := strconv.ParseBool(c.DefaultQuery("upload", "false"))

	result, err := h.service.Export(c.Request.Context(), c.Param("id"), upload)
	if err != nil {
		WriteError(c, err)
		return
	}

	if result.URL != "" {
		c.Header("X-Export-URL", result.URL)
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", result.Content)
}

// RegisterRoutes registers the handler's routes
func (h *SessionHandler) RegisterRoutes(router *gin.RouterGroup) {
	sessions := router.Group("/sessions")
	{
		sessions.POST("", h.HandleStart)
		sessions.GET("/:id", h.HandleGet)
		sessions.DELETE("/:id", h.HandleClear)
		sessions.POST("/:id/scans", h.HandleScan)
		sessions.PATCH("/:id/items/:code", h.HandleEditItem)
		sessions.DELETE("/:id/items/:code", h.HandleRemoveItem)
		sessions.POST("/:id/assign", h.HandleAssign)
		sessions.POST("/:id/program", h.HandleProgram)
		sessions.POST("/:id/qualify", h.HandleQualify)
		sessions.POST("/:id/lotes/:lote/load", h.HandleLoadLote)
		sessions.POST("/:id/deliver", h.HandleDeliver)
		sessions.POST("/:id/mark-pending", h.HandleMarkPending)
		sessions.POST("/:id/submit", h.HandleSubmit)
		sessions.GET("/:id/export", h.HandleExport)
	}
}
