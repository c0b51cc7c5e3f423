package relational

import (
	"context"

	"github.com/jmoiron/sqlx"

	"ltmc/internal/apperrors"
)

// AllocateVectorIDs reserves n consecutive vector ids on the single
// sequence row, returning the first of the block. Ids are strictly
// monotonic and never reused, even when the surrounding transaction
// rolls back; a gap is cheaper than a collision.
func (s *Store) AllocateVectorIDs(ctx context.Context, q sqlx.ExtContext, n int) (int64, error) {
	if n <= 0 {
		return 0, apperrors.NewValidationError("count", "must be positive", n)
	}
	if s.driver == "postgres" {
		var last int64
		row := q.QueryRowxContext(ctx,
			`UPDATE VectorIdSequence SET last_vector_id = last_vector_id + $1 RETURNING last_vector_id`, n)
		if err := row.Scan(&last); err != nil {
			return 0, apperrors.Wrap(apperrors.ErrorCodeRelational, "allocating vector ids", err)
		}
		return last - int64(n) + 1, nil
	}

	// sqlite: the single write connection serializes the two statements.
	if _, err := q.ExecContext(ctx,
		`UPDATE VectorIdSequence SET last_vector_id = last_vector_id + ?`, n); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrorCodeRelational, "allocating vector ids", err)
	}
	var last int64
	row := q.QueryRowxContext(ctx, `SELECT last_vector_id FROM VectorIdSequence`)
	if err := row.Scan(&last); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrorCodeRelational, "reading vector id sequence", err)
	}
	return last - int64(n) + 1, nil
}

// AllocateVectorID reserves a single id outside any caller-held
// transaction.
func (s *Store) AllocateVectorID(ctx context.Context) (int64, error) {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	id, err := s.AllocateVectorIDs(ctx, tx, 1)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrorCodeRelational, "committing vector id allocation", err)
	}
	return id, nil
}

// LastVectorID reports the high-water mark of the allocator.
func (s *Store) LastVectorID(ctx context.Context) (int64, error) {
	var last int64
	if err := s.db.GetContext(ctx, &last, `SELECT last_vector_id FROM VectorIdSequence`); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrorCodeRelational, "reading vector id sequence", err)
	}
	return last, nil
}
