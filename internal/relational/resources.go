package relational

import (
	"context"

	"github.com/jmoiron/sqlx"

	"ltmc/internal/apperrors"
)

// ChunkInsert carries one chunk into InsertChunks.
type ChunkInsert struct {
	Text     string
	VectorID int64
	Position int
}

// CreateResource inserts a Resource row inside the caller's
// transaction and returns its id.
func (s *Store) CreateResource(ctx context.Context, q sqlx.ExtContext, fileName, resourceType string) (int64, error) {
	if !ValidResourceType(resourceType) {
		return 0, apperrors.NewValidationError("resource_type", "must be one of document, code, chat, pattern, blueprint", resourceType)
	}
	id, err := s.insertReturningID(ctx, q,
		`INSERT INTO Resources (file_name, resource_type) VALUES (?, ?)`,
		fileName, resourceType)
	if err != nil {
		return 0, storageErr("inserting resource", "resource", fileName, err)
	}
	return id, nil
}

// InsertChunks inserts the chunk rows for a resource inside the
// caller's transaction, preserving the caller's ordering.
func (s *Store) InsertChunks(ctx context.Context, q sqlx.ExtContext, resourceID int64, chunks []ChunkInsert) ([]int64, error) {
	ids := make([]int64, 0, len(chunks))
	for _, c := range chunks {
		id, err := s.insertReturningID(ctx, q,
			`INSERT INTO ResourceChunks (resource_id, chunk_text, vector_id, position, generation_method)
			 VALUES (?, ?, ?, ?, ?)`,
			resourceID, c.Text, c.VectorID, c.Position, GenSequential)
		if err != nil {
			return nil, storageErr("inserting chunk", "chunk", c.VectorID, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetResource loads a resource by id.
func (s *Store) GetResource(ctx context.Context, id int64) (*Resource, error) {
	var r Resource
	if err := s.db.GetContext(ctx, &r, s.rebind(
		`SELECT id, file_name, resource_type, created_at FROM Resources WHERE id = ?`), id); err != nil {
		return nil, storageErr("loading resource", "resource", id, err)
	}
	return &r, nil
}

// GetResourceByFileName loads the most recent resource with the given
// file name.
func (s *Store) GetResourceByFileName(ctx context.Context, fileName string) (*Resource, error) {
	var r Resource
	if err := s.db.GetContext(ctx, &r, s.rebind(
		`SELECT id, file_name, resource_type, created_at FROM Resources
		 WHERE file_name = ? ORDER BY id DESC LIMIT 1`), fileName); err != nil {
		return nil, storageErr("loading resource", "resource", fileName, err)
	}
	return &r, nil
}

// ListResources returns resources, optionally filtered by type.
func (s *Store) ListResources(ctx context.Context, resourceType string, limit int) ([]Resource, error) {
	if limit <= 0 {
		limit = 100
	}
	var (
		out  []Resource
		err  error
		base = `SELECT id, file_name, resource_type, created_at FROM Resources`
	)
	if resourceType != "" {
		err = s.db.SelectContext(ctx, &out, s.rebind(
			base+` WHERE resource_type = ? ORDER BY created_at DESC, id DESC LIMIT ?`), resourceType, limit)
	} else {
		err = s.db.SelectContext(ctx, &out, s.rebind(
			base+` ORDER BY created_at DESC, id DESC LIMIT ?`), limit)
	}
	if err != nil {
		return nil, storageErr("listing resources", "resource", resourceType, err)
	}
	return out, nil
}

// DeleteResource removes a resource row. Chunks and their context
// links go with it through the FK cascades. It returns the vector ids
// the caller must also purge from the vector index.
func (s *Store) DeleteResource(ctx context.Context, id int64) ([]int64, error) {
	var vectorIDs []int64
	if err := s.db.SelectContext(ctx, &vectorIDs, s.rebind(
		`SELECT vector_id FROM ResourceChunks WHERE resource_id = ?`), id); err != nil {
		return nil, storageErr("collecting chunk vector ids", "resource", id, err)
	}

	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM Resources WHERE id = ?`), id)
	if err != nil {
		return nil, storageErr("deleting resource", "resource", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, apperrors.NewNotFoundError("resource", id)
	}
	return vectorIDs, nil
}

// ChunksByResource returns a resource's chunks in position order.
func (s *Store) ChunksByResource(ctx context.Context, resourceID int64) ([]ResourceChunk, error) {
	var out []ResourceChunk
	if err := s.db.SelectContext(ctx, &out, s.rebind(
		`SELECT id, resource_id, chunk_text, vector_id, position, generation_method
		 FROM ResourceChunks WHERE resource_id = ? ORDER BY position`), resourceID); err != nil {
		return nil, storageErr("loading chunks", "resource", resourceID, err)
	}
	return out, nil
}

// ChunksByVectorIDs hydrates chunks and their parent resources in one
// batched query. Vector ids with no surviving chunk are simply absent
// from the result.
func (s *Store) ChunksByVectorIDs(ctx context.Context, vectorIDs []int64) ([]HydratedChunk, error) {
	if len(vectorIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		`SELECT c.id, c.resource_id, c.chunk_text, c.vector_id, c.position, c.generation_method,
		        r.file_name, r.resource_type, r.created_at AS resource_created_at
		 FROM ResourceChunks c
		 JOIN Resources r ON r.id = c.resource_id
		 WHERE c.vector_id IN (?)`, vectorIDs)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorCodeRelational, "building hydrate query", err)
	}
	var out []HydratedChunk
	if err := s.db.SelectContext(ctx, &out, s.rebind(query), args...); err != nil {
		return nil, storageErr("hydrating chunks", "chunk", vectorIDs, err)
	}
	return out, nil
}

// AllChunkVectorIDs lists every chunk vector id, for the consistency
// sweep.
func (s *Store) AllChunkVectorIDs(ctx context.Context) ([]int64, error) {
	var out []int64
	if err := s.db.SelectContext(ctx, &out,
		`SELECT vector_id FROM ResourceChunks ORDER BY vector_id`); err != nil {
		return nil, storageErr("listing chunk vector ids", "chunk", nil, err)
	}
	return out, nil
}

// MarkChunkOrphaned flags a chunk whose vector went missing so the
// sweep can re-embed it.
func (s *Store) MarkChunkOrphaned(ctx context.Context, vectorID int64) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE ResourceChunks SET generation_method = ? WHERE vector_id = ?`),
		GenOrphaned, vectorID); err != nil {
		return storageErr("marking chunk orphaned", "chunk", vectorID, err)
	}
	return nil
}

// MarkChunkRepaired restores a chunk after its vector is back in the
// index.
func (s *Store) MarkChunkRepaired(ctx context.Context, vectorID int64) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE ResourceChunks SET generation_method = ? WHERE vector_id = ?`),
		GenSequential, vectorID); err != nil {
		return storageErr("repairing chunk", "chunk", vectorID, err)
	}
	return nil
}

// OrphanedChunks lists chunks flagged for re-embedding.
func (s *Store) OrphanedChunks(ctx context.Context) ([]ResourceChunk, error) {
	var out []ResourceChunk
	if err := s.db.SelectContext(ctx, &out, s.rebind(
		`SELECT id, resource_id, chunk_text, vector_id, position, generation_method
		 FROM ResourceChunks WHERE generation_method = ? ORDER BY id`), GenOrphaned); err != nil {
		return nil, storageErr("listing orphaned chunks", "chunk", nil, err)
	}
	return out, nil
}
