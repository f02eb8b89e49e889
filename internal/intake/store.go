package intake

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"

	"thirdcoast.systems/mediaqueue/internal/db"
)

// TxStore is the query surface intake needs inside a transaction. Lookups
// return pgx.ErrNoRows when nothing matches.
type TxStore interface {
	GetSwipeByKeyForUpdate(ctx context.Context, key *db.SwipeKey) (*db.Swipe, error)
	InsertSwipe(ctx context.Context, key *db.SwipeKey) (*db.Swipe, error)
	ReviveFailedSwipe(ctx context.Context, id pgtype.UUID) (*db.Swipe, error)
	GetSwipeByIDForUpdate(ctx context.Context, id pgtype.UUID) (*db.Swipe, error)
	GetActiveMediaJobForSwipe(ctx context.Context, swipeID string) (*db.MediaJob, error)

	GetResearchItemByIDForUpdate(ctx context.Context, id pgtype.UUID) (*db.ResearchItem, error)
	SetResearchItemProcessing(ctx context.Context, id pgtype.UUID) error
	GetActiveMediaJobForResearchItem(ctx context.Context, researchItemID string) (*db.MediaJob, error)

	EnqueueMediaJob(ctx context.Context, arg *db.EnqueueMediaJobParams) (*db.MediaJob, error)
	GetMediaJobByID(ctx context.Context, id pgtype.UUID) (*db.MediaJob, error)
}

// Transactor runs fn inside one database transaction, committing when fn
// returns nil.
type Transactor interface {
	InTx(ctx context.Context, fn func(TxStore) error) error
}

type pgStore struct {
	dbc *db.DatabaseConnection
}

// NewPostgresStore adapts a database connection to Transactor.
func NewPostgresStore(dbc *db.DatabaseConnection) Transactor {
	return &pgStore{dbc: dbc}
}

func (s *pgStore) InTx(ctx context.Context, fn func(TxStore) error) error {
	return s.dbc.InTx(ctx, func(q *db.Queries) error {
		return fn(q)
	})
}
