package rest

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/groupwatch/group-indexer/internal/api/shared/executor"
)

// Handler defines the interface for REST API handlers
//
//go:generate mockgen -source=handler.go -destination=../../mocks/api_handler.go -package=mocks -mock_names=Handler=MockAPIHandler
type Handler interface {
	// GetGroup retrieves the latest record of a group
	// GET /api/v1/groups/:group_id
	GetGroup(c *gin.Context)

	// ListGroups retrieves groups with optional filters
	// GET /api/v1/groups?page=<page>&per_page=<n>&group_id=<substring>&group_type=<type>&worldview=<worldview>&has_sexual_content=<bool>&no_audit_no_setting=<bool>&sort_by=<first_seen_group|last_seen_group>&sort_order=<asc|desc>
	ListGroups(c *gin.Context)

	// RecentGroups retrieves the most recently seen groups
	// GET /api/v1/groups/recent?limit=<n>
	RecentGroups(c *gin.Context)

	// GetHistory retrieves the content versions of a group, newest first
	// GET /api/v1/groups/:group_id/history?limit=<n>
	GetHistory(c *gin.Context)

	// SearchGroups retrieves groups whose content contains a keyword
	// GET /api/v1/search?q=<keyword>&limit=<n>
	SearchGroups(c *gin.Context)

	// GetStats returns aggregate counters
	// GET /api/v1/stats
	GetStats(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	executor executor.Executor
}

// NewHandler creates a new REST API handler using the shared executor
func NewHandler(exec executor.Executor) Handler {
	return &handler{
		executor: exec,
	}
}

// GetGroup retrieves the latest record of a group
func (h *handler) GetGroup(c *gin.Context) {
	groupID := strings.TrimSpace(c.Param("group_id"))
	if groupID == "" {
		respondBadRequest(c, "group_id is required")
		return
	}

	group, err := h.executor.GetGroup(c.Request.Context(), groupID)
	if err != nil {
		respondInternalError(c, err, "Failed to get group", zap.String("group_id", groupID))
		return
	}

	if group == nil {
		respondNotFound(c, "Group not found", groupID)
		return
	}

	c.JSON(http.StatusOK, group)
}

// ListGroups retrieves groups with optional filters
func (h *handler) ListGroups(c *gin.Context) {
	queryParams, err := ParseListGroupsQuery(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	if err := queryParams.Validate(); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	response, err := h.executor.ListGroups(c.Request.Context(), queryParams.ToQuery())
	if err != nil {
		respondInternalError(c, err, "Failed to list groups")
		return
	}

	c.JSON(http.StatusOK, response)
}

// RecentGroups retrieves the most recently seen groups
func (h *handler) RecentGroups(c *gin.Context) {
	queryParams, err := ParseLimitQuery(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	response, err := h.executor.RecentGroups(c.Request.Context(), queryParams.Limit)
	if err != nil {
		respondInternalError(c, err, "Failed to get recent groups")
		return
	}

	c.JSON(http.StatusOK, response)
}

// GetHistory retrieves the content versions of a group
func (h *handler) GetHistory(c *gin.Context) {
	groupID := strings.TrimSpace(c.Param("group_id"))
	if groupID == "" {
		respondBadRequest(c, "group_id is required")
		return
	}

	queryParams, err := ParseLimitQuery(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	response, err := h.executor.GetHistory(c.Request.Context(), groupID, queryParams.Limit)
	if err != nil {
		respondInternalError(c, err, "Failed to get group history", zap.String("group_id", groupID))
		return
	}

	if response == nil {
		respondNotFound(c, "Group not found", groupID)
		return
	}

	c.JSON(http.StatusOK, response)
}

// SearchGroups retrieves groups whose content contains a keyword
func (h *handler) SearchGroups(c *gin.Context) {
	queryParams, err := ParseSearchQuery(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	keyword := strings.TrimSpace(queryParams.Keyword)
	if keyword == "" {
		respondBadRequest(c, "q is required")
		return
	}

	response, err := h.executor.SearchGroups(c.Request.Context(), keyword, queryParams.Limit)
	if err != nil {
		respondInternalError(c, err, "Failed to search groups")
		return
	}

	c.JSON(http.StatusOK, response)
}

// GetStats returns aggregate counters
func (h *handler) GetStats(c *gin.Context) {
	response, err := h.executor.GetStats(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "Failed to get stats")
		return
	}

	c.JSON(http.StatusOK, response)
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	response := h.executor.Health(c.Request.Context())

	status := http.StatusOK
	if response.Database != "connected" {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, response)
}
