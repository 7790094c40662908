package dbx

import (
	"context"
	"errors"
	"fmt"

	"github.com/tubepulse/accounts/internal/common"
)

const DefaultOptimisticRetries = 3

// Versioned is an entity carrying an optimistic-concurrency counter.
type Versioned interface {
	CurrentVersion() int64
}

// VersionedRepository reads an entity and writes it back only if its version
// is unchanged. UpdateVersioned must increment the stored version and return
// common.ErrVersionConflict when no row matched (id, version).
type VersionedRepository[T Versioned] interface {
	GetByID(ctx context.Context, id string) (T, error)
	UpdateVersioned(ctx context.Context, id string, version int64, next T) (T, error)
}

// OptimisticUpdate runs a read-modify-write cycle on the entity identified by
// id. update receives the freshly read entity and returns the values to write.
// A version conflict re-reads and recomputes; after attempts tries the call
// fails with common.ErrConcurrentModification.
//
// Not for session or token rotation: those rely on transaction isolation.
func OptimisticUpdate[T Versioned](
	ctx context.Context,
	tr Transactor,
	repoFor func(db DBTX) VersionedRepository[T],
	id string,
	attempts int,
	update func(current T) (T, error),
) (T, error) {
	if attempts <= 0 {
		attempts = DefaultOptimisticRetries
	}

	var zero T
	for i := 0; i < attempts; i++ {
		var current T
		err := tr.Do(ctx, func(ctx context.Context, db DBTX) error {
			var err error
			current, err = repoFor(db).GetByID(ctx, id)
			return err
		})
		if err != nil {
			return zero, err
		}

		next, err := update(current)
		if err != nil {
			return zero, err
		}

		var saved T
		err = tr.Do(ctx, func(ctx context.Context, db DBTX) error {
			var err error
			saved, err = repoFor(db).UpdateVersioned(ctx, id, current.CurrentVersion(), next)
			return err
		})
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, common.ErrVersionConflict) {
			return zero, err
		}
	}
	return zero, common.ErrConcurrentModification.WithCause(fmt.Errorf("%s: gave up after %d attempts", id, attempts))
}
