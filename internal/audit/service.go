package audit

import (
	"context"
	"errors"
	"strings"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	maxExportRows   = 10000
)

// Query is the storage-level form of TimelineFilters.
type Query struct {
	TimelineFilters
	Offset int
	Limit  int
}

// Repository loads audit rows ordered newest first.
type Repository interface {
	ListAudit(ctx context.Context, q Query) ([]TimelineRow, error)
}

// Service coordinates audit trail reads.
type Service struct {
	repo Repository
}

// NewService creates a new audit timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of audit records.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, errors.New("audit: repository not configured")
	}
	filters = normalize(filters)
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	rows, err := s.repo.ListAudit(ctx, Query{
		TimelineFilters: filters,
		Offset:          (page - 1) * pageSize,
		Limit:           pageSize + 1,
	})
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	if rows == nil {
		rows = []TimelineRow{}
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every matching record up to the export cap.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	return s.repo.ListAudit(ctx, Query{TimelineFilters: normalize(filters), Limit: maxExportRows})
}

func normalize(f TimelineFilters) TimelineFilters {
	f.Entity = strings.TrimSpace(f.Entity)
	f.EntityID = strings.TrimSpace(f.EntityID)
	f.Action = strings.ToLower(strings.TrimSpace(f.Action))
	return f
}
