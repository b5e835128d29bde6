package handlers

import (
	"net/http"
	"strconv"

	"github.com/CzarCx/qr-brain/internal/service"

	"github.com/gin-gonic/gin"
)

// PersonnelHandler serves staff, report reasons and scan search
type PersonnelHandler struct {
	service ScanService
}

// NewPersonnelHandler creates a new personnel handler
func NewPersonnelHandler(svc ScanService) *PersonnelHandler {
	return &PersonnelHandler{service: svc}
}

// HandleList lists staff, optionally by ?role=
func (h *PersonnelHandler) HandleList(c *gin.Context) {
	people, err := h.service.ListPersonnel(c.Request.Context(), c.Query("role"))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, people)
}

// HandleRegister adds a staff member
func (h *PersonnelHandler) HandleRegister(c *gin.Context) {
	var req service.RegisterPersonnelRequest
	if !bindJSON(c, &req) {
		return
	}

	person, err := h.service.RegisterPersonnel(c.Request.Context(), req)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, person)
}

// HandleReportReasons lists the selectable report reasons
func (h *PersonnelHandler) HandleReportReasons(c *gin.Context) {
	reasons, err := h.service.ReportReasons(c.Request.Context())
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, reasons)
}

// HandleSearchScans queries submitted scans
func (h *PersonnelHandler) HandleSearchScans(c *gin.Context) {
	size, _ := strconv.Atoi(c.Query("size"))

	scans, err := h.service.SearchScans(c.Request.Context(), c.Query("q"), size)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, scans)
}

// RegisterRoutes registers the handler's routes
func (h *PersonnelHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/personnel", h.HandleList)
	router.POST("/personnel", h.HandleRegister)
	router.GET("/report-reasons", h.HandleReportReasons)
	router.GET("/scans/search", h.HandleSearchScans)
}
