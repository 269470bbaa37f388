package rest

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/groupwatch/group-indexer/internal/api/shared/constants"
	"github.com/groupwatch/group-indexer/internal/api/shared/executor"
	"github.com/groupwatch/group-indexer/internal/api/shared/types"
	"github.com/groupwatch/group-indexer/internal/domain"
)

// ListGroupsQueryParams holds query parameters for GET /groups
type ListGroupsQueryParams struct {
	// Filters
	GroupID          string `form:"group_id"`
	GroupType        string `form:"group_type"`
	Worldview        string `form:"worldview"`
	HasSexualContent *bool  `form:"has_sexual_content"`
	NoAuditNoSetting *bool  `form:"no_audit_no_setting"`

	// Pagination
	Page    int `form:"page,default=1"`
	PerPage int `form:"per_page,default=20"`

	// Sorting
	SortBy    types.SortField `form:"sort_by,default=last_seen_group"`
	SortOrder types.Order     `form:"sort_order,default=desc"`
}

// LimitQueryParams holds the limit of unpaged listings
type LimitQueryParams struct {
	Limit int `form:"limit"`
}

// SearchQueryParams holds query parameters for GET /search
type SearchQueryParams struct {
	Keyword string `form:"q"`
	Limit   int    `form:"limit"`
}

// ParseListGroupsQuery parses query parameters for GET /groups
func ParseListGroupsQuery(c *gin.Context) (*ListGroupsQueryParams, error) {
	var params ListGroupsQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		return nil, err
	}

	// Cap limits
	if params.PerPage > constants.MAX_PAGE_SIZE {
		params.PerPage = constants.MAX_PAGE_SIZE
	}

	return &params, nil
}

// Validate checks the filter values
func (p *ListGroupsQueryParams) Validate() error {
	if p.Page < 1 {
		return fmt.Errorf("page must be at least 1")
	}
	if p.Page > constants.MAX_PAGE {
		return fmt.Errorf("page must be at most %d", constants.MAX_PAGE)
	}
	if p.PerPage < 1 {
		return fmt.Errorf("per_page must be at least 1")
	}
	if p.GroupType != "" && !domain.IsValidGroupType(domain.GroupType(p.GroupType)) {
		return fmt.Errorf("invalid group_type: %s", p.GroupType)
	}
	if p.Worldview != "" && !domain.IsValidWorldview(domain.Worldview(p.Worldview)) {
		return fmt.Errorf("invalid worldview: %s", p.Worldview)
	}
	if !p.SortBy.Valid() {
		return fmt.Errorf("invalid sort_by: %s", p.SortBy)
	}
	if !p.SortOrder.Valid() {
		return fmt.Errorf("invalid sort_order: %s", p.SortOrder)
	}
	return nil
}

// ToQuery converts the parameters to an executor query
func (p *ListGroupsQueryParams) ToQuery() executor.GroupQuery {
	query := executor.GroupQuery{
		Page:             p.Page,
		PerPage:          p.PerPage,
		GroupID:          p.GroupID,
		HasSexualContent: p.HasSexualContent,
		NoAuditNoSetting: p.NoAuditNoSetting,
		SortBy:           p.SortBy,
		Order:            p.SortOrder,
	}
	if p.GroupType != "" {
		groupType := domain.GroupType(p.GroupType)
		query.GroupType = &groupType
	}
	if p.Worldview != "" {
		worldview := domain.Worldview(p.Worldview)
		query.Worldview = &worldview
	}
	return query
}

// ParseLimitQuery parses the limit parameter
func ParseLimitQuery(c *gin.Context) (*LimitQueryParams, error) {
	var params LimitQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		return nil, err
	}
	if params.Limit < 0 {
		return nil, fmt.Errorf("limit must not be negative")
	}
	return &params, nil
}

// ParseSearchQuery parses query parameters for GET /search
func ParseSearchQuery(c *gin.Context) (*SearchQueryParams, error) {
	var params SearchQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		return nil, err
	}
	if params.Limit < 0 {
		return nil, fmt.Errorf("limit must not be negative")
	}
	return &params, nil
}
