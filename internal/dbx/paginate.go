package dbx

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
	MaxPage          = 1_000_000
)

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// PageRequest is a 1-indexed page query.
type PageRequest struct {
	Page          int
	Limit         int
	SortField     string
	SortDirection SortDirection
}

// Normalize clamps Page into [1, MaxPage] and Limit into [1, MaxPageLimit]
// so Offset cannot overflow, and lower-cases the direction, defaulting to
// descending.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}
	if p.Limit < 1 {
		p.Limit = 1
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	switch SortDirection(strings.ToLower(string(p.SortDirection))) {
	case SortAsc:
		p.SortDirection = SortAsc
	default:
		p.SortDirection = SortDesc
	}
	return p
}

func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Limit
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
	HasNext    bool  `json:"hasNext"`
	HasPrev    bool  `json:"hasPrev"`
}

type Page[T any] struct {
	Items      []T        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// Paginate fetches the total and the requested slice concurrently.
func Paginate[T any](
	ctx context.Context,
	req PageRequest,
	count func(ctx context.Context) (int64, error),
	list func(ctx context.Context, req PageRequest) ([]T, error),
) (*Page[T], error) {
	req = req.Normalize()

	var (
		total int64
		items []T
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = count(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		items, err = list(gctx, req)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if items == nil {
		items = []T{}
	}
	totalPages := int((total + int64(req.Limit) - 1) / int64(req.Limit))
	return &Page[T]{
		Items: items,
		Pagination: Pagination{
			Page:       req.Page,
			Limit:      req.Limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    req.Page < totalPages,
			HasPrev:    req.Page > 1,
		},
	}, nil
}
