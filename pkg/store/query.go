package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"portfoliohub/pkg/domain"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Page selects a window of a list result.
type Page struct {
	Limit  int
	Offset int
}

// Normalize applies the default limit and clamps to MaxPageLimit.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Sort orders a list by a public field name (e.g. "createdAt").
type Sort struct {
	Field string
	Desc  bool
}

type UserFilter struct {
	Role   domain.UserRole
	Search string
	Active *bool
}

type EmployeeFilter struct {
	Department string
}

type ProjectFilter struct {
	Statuses []domain.ProjectStatus
	Category domain.ProjectCategory
	AuthorID string
	Featured *bool
	TagSlug  string
	Search   string
	Keyword  string
}

type ProjectQuery struct {
	Filter ProjectFilter
	Sort   Sort
	Page   Page
}

type CommentFilter struct {
	ProjectID    string
	AuthorID     string
	Approved     *bool
	TopLevelOnly bool
}

type InquiryFilter struct {
	Status domain.InquiryStatus
	Search string
}

type SubscriptionFilter struct {
	ActiveOnly bool
}

var projectSortColumns = map[string]string{
	"createdAt":     "created_at",
	"updatedAt":     "updated_at",
	"publishedAt":   "published_at",
	"title":         "title",
	"viewCount":     "view_count",
	"featuredOrder": "featured_order",
	"year":          "year",
}

// projectSortColumn resolves the column for a sort field. The default order is
// newest first.
func projectSortColumn(sort Sort) (string, bool, error) {
	field := strings.TrimSpace(sort.Field)
	if field == "" {
		return "created_at", true, nil
	}
	col, ok := projectSortColumns[field]
	if !ok {
		return "", false, fmt.Errorf("%w: unknown sort field %q", ErrInvalidQuery, field)
	}
	return col, sort.Desc, nil
}

// ProjectStats aggregates the project table.
type ProjectStats struct {
	Total      int                            `json:"total"`
	Featured   int                            `json:"featured"`
	ByStatus   map[domain.ProjectStatus]int   `json:"byStatus"`
	ByCategory map[domain.ProjectCategory]int `json:"byCategory"`
	TotalViews int64                          `json:"totalViews"`
	AvgViews   float64                        `json:"avgViews"`
	MaxViews   int64                          `json:"maxViews"`
}

// DepartmentSalaryStats is one group of the salary aggregate.
type DepartmentSalaryStats struct {
	Department string          `json:"department"`
	Headcount  int             `json:"headcount"`
	Total      decimal.Decimal `json:"total"`
	Average    decimal.Decimal `json:"average"`
	Min        decimal.Decimal `json:"min"`
	Max        decimal.Decimal `json:"max"`
}

type TagUsage struct {
	Tag          domain.Tag `json:"tag"`
	ProjectCount int        `json:"projectCount"`
}

// AssetProcessing is the worker-owned slice of a ProjectAsset.
type AssetProcessing struct {
	Status      domain.ProcessingStatus
	IsProcessed bool
	Error       string
	UpdatedAt   time.Time
	// Result is nil for status-only transitions; media columns are then left alone.
	Result *AssetMedia
}

type AssetMedia struct {
	Width     *int
	Height    *int
	PageCount *int
	Metadata  json.RawMessage
}
