package dbx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageRequest_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   PageRequest
		want PageRequest
	}{
		{"zero values", PageRequest{}, PageRequest{Page: 1, Limit: 1, SortDirection: SortDesc}},
		{"negative", PageRequest{Page: -3, Limit: -1}, PageRequest{Page: 1, Limit: 1, SortDirection: SortDesc}},
		{"limit capped", PageRequest{Page: 2, Limit: 500}, PageRequest{Page: 2, Limit: MaxPageLimit, SortDirection: SortDesc}},
		{"page capped", PageRequest{Page: 1 << 40, Limit: 50}, PageRequest{Page: MaxPage, Limit: 50, SortDirection: SortDesc}},
		{"asc kept", PageRequest{Page: 1, Limit: 10, SortField: "email", SortDirection: "ASC"}, PageRequest{Page: 1, Limit: 10, SortField: "email", SortDirection: SortAsc}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}

func TestPageRequest_OffsetStaysPositive(t *testing.T) {
	req := PageRequest{Page: 1 << 62, Limit: 1 << 62}.Normalize()
	assert.Equal(t, (MaxPage-1)*MaxPageLimit, req.Offset())
}

func TestPaginate_Metadata(t *testing.T) {
	var seen PageRequest
	page, err := Paginate(context.Background(), PageRequest{Page: 2, Limit: 10, SortField: "created_at"},
		func(ctx context.Context) (int64, error) { return 25, nil },
		func(ctx context.Context, req PageRequest) ([]int, error) {
			seen = req
			return []int{11, 12, 13}, nil
		},
	)
	require.NoError(t, err)

	assert.Equal(t, []int{11, 12, 13}, page.Items)
	assert.Equal(t, Pagination{Page: 2, Limit: 10, Total: 25, TotalPages: 3, HasNext: true, HasPrev: true}, page.Pagination)
	assert.Equal(t, 10, seen.Offset())
	assert.Equal(t, "created_at", seen.SortField)
	assert.Equal(t, SortDesc, seen.SortDirection)
}

func TestPaginate_EmptyResult(t *testing.T) {
	page, err := Paginate(context.Background(), PageRequest{Page: 1, Limit: 20},
		func(ctx context.Context) (int64, error) { return 0, nil },
		func(ctx context.Context, req PageRequest) ([]string, error) { return nil, nil },
	)
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.Equal(t, 0, page.Pagination.TotalPages)
	assert.False(t, page.Pagination.HasNext)
	assert.False(t, page.Pagination.HasPrev)
}

func TestPaginate_RunsCountAndListConcurrently(t *testing.T) {
	countStarted := make(chan struct{})
	listStarted := make(chan struct{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := Paginate(ctx, PageRequest{Page: 1, Limit: 5},
		func(ctx context.Context) (int64, error) {
			close(countStarted)
			select {
			case <-listStarted:
				return 1, nil
			case <-ctx.Done():
				return 0, errors.New("list never started while count was running")
			}
		},
		func(ctx context.Context, req PageRequest) ([]int, error) {
			close(listStarted)
			select {
			case <-countStarted:
				return []int{1}, nil
			case <-ctx.Done():
				return nil, errors.New("count never started while list was running")
			}
		},
	)
	require.NoError(t, err)
}

func TestPaginate_PropagatesError(t *testing.T) {
	boom := errors.New("count failed")
	_, err := Paginate(context.Background(), PageRequest{Page: 1, Limit: 5},
		func(ctx context.Context) (int64, error) { return 0, boom },
		func(ctx context.Context, req PageRequest) ([]int, error) { return []int{1}, nil },
	)
	assert.ErrorIs(t, err, boom)
}
