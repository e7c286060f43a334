package audit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Repository provides the query surface the service needs.
type Repository interface {
	List(ctx context.Context, filters Filters, limit, offset int) ([]Entry, error)
	GetByID(ctx context.Context, tenantID, id int64) (Entry, error)
	CountByAction(ctx context.Context, tenantID int64, from, to time.Time) ([]ActionCount, error)
	CountByResource(ctx context.Context, tenantID int64, from, to time.Time) ([]ResourceCount, error)
	Recent(ctx context.Context, tenantID int64, n int) ([]Entry, error)
	ActiveTenants(ctx context.Context, since time.Time) ([]int64, error)
}

// Service coordinates audit trail reads.
type Service struct {
	repo Repository
}

// NewService builds the audit query service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns one page of entries matching the filters.
func (s *Service) List(ctx context.Context, filters Filters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	// Fetch one extra row to detect a next page without a count query.
	rows, err := s.repo.List(ctx, filters, pageSize+1, offset)
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
	return Result{Rows: rows, Paging: paging}, nil
}

// GetByID fetches one entry within the tenant.
func (s *Service) GetByID(ctx context.Context, tenantID, id int64) (Entry, error) {
	return s.repo.GetByID(ctx, tenantID, id)
}

// ByActor returns the history of actions performed by one principal.
func (s *Service) ByActor(ctx context.Context, tenantID, actorID int64, page, pageSize int) (Result, error) {
	return s.List(ctx, Filters{TenantID: tenantID, ActorID: actorID, Page: page, PageSize: pageSize})
}

// ByRole returns the mutation history of one role.
func (s *Service) ByRole(ctx context.Context, tenantID, roleID int64, page, pageSize int) (Result, error) {
	return s.List(ctx, Filters{
		TenantID:     tenantID,
		ResourceType: "role",
		ResourceID:   fmt.Sprintf("%d", roleID),
		Page:         page,
		PageSize:     pageSize,
	})
}

// Stats aggregates counts per action and resource type plus the newest
// entries, fanned out concurrently.
func (s *Service) Stats(ctx context.Context, tenantID int64, from, to time.Time, recentN int) (Stats, error) {
	if recentN <= 0 {
		recentN = 10
	}
	var stats Stats
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := s.repo.CountByAction(ctx, tenantID, from, to)
		if err != nil {
			return err
		}
		stats.ByAction = counts
		return nil
	})
	g.Go(func() error {
		counts, err := s.repo.CountByResource(ctx, tenantID, from, to)
		if err != nil {
			return err
		}
		stats.ByResource = counts
		return nil
	})
	g.Go(func() error {
		recent, err := s.repo.Recent(ctx, tenantID, recentN)
		if err != nil {
			return err
		}
		stats.Recent = recent
		return nil
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// ActiveTenants lists tenants with audit activity since the given time.
func (s *Service) ActiveTenants(ctx context.Context, since time.Time) ([]int64, error) {
	return s.repo.ActiveTenants(ctx, since)
}
