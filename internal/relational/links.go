package relational

import (
	"context"
	"database/sql"
	"errors"

	"ltmc/internal/apperrors"
)

// UpsertResourceLink creates or refreshes a typed edge between two
// resources. The (source, target, type) triple is unique; an upsert
// on an existing triple updates weight and metadata in place.
func (s *Store) UpsertResourceLink(ctx context.Context, source, target int64, linkType string, weight float64, metadata string) (int64, error) {
	if linkType == "" {
		return 0, apperrors.NewRequiredFieldError("link_type")
	}
	if source == target {
		return 0, apperrors.NewValidationError("target_resource_id", "cannot link a resource to itself", target)
	}
	if weight <= 0 {
		weight = 1.0
	}
	meta := nullStr(metadata)

	var existing int64
	err := s.db.GetContext(ctx, &existing, s.rebind(
		`SELECT id FROM ResourceLinks
		 WHERE source_resource_id = ? AND target_resource_id = ? AND link_type = ?`),
		source, target, linkType)
	switch {
	case err == nil:
		if _, err := s.db.ExecContext(ctx, s.rebind(
			`UPDATE ResourceLinks SET weight = ?, metadata = ? WHERE id = ?`),
			weight, meta, existing); err != nil {
			return 0, storageErr("updating resource link", "resource link", existing, err)
		}
		return existing, nil
	case errors.Is(err, sql.ErrNoRows):
		id, err := s.insertReturningID(ctx, s.db,
			`INSERT INTO ResourceLinks (source_resource_id, target_resource_id, link_type, metadata, weight)
			 VALUES (?, ?, ?, ?, ?)`,
			source, target, linkType, meta, weight)
		if err != nil {
			return 0, storageErr("inserting resource link", "resource link", linkType, err)
		}
		return id, nil
	default:
		return 0, storageErr("looking up resource link", "resource link", linkType, err)
	}
}

// InsertResourceLink creates a typed edge, reporting AlreadyExists
// when the (source, target, type) triple is taken.
func (s *Store) InsertResourceLink(ctx context.Context, source, target int64, linkType string, weight float64, metadata string) (int64, error) {
	if linkType == "" {
		return 0, apperrors.NewRequiredFieldError("link_type")
	}
	if source == target {
		return 0, apperrors.NewValidationError("target_resource_id", "cannot link a resource to itself", target)
	}
	if weight <= 0 {
		weight = 1.0
	}
	id, err := s.insertReturningID(ctx, s.db,
		`INSERT INTO ResourceLinks (source_resource_id, target_resource_id, link_type, metadata, weight)
		 VALUES (?, ?, ?, ?, ?)`,
		source, target, linkType, nullStr(metadata), weight)
	if err != nil {
		return 0, storageErr("inserting resource link", "resource link", linkType, err)
	}
	return id, nil
}

// LinksForResource returns edges touching a resource in either
// direction, heaviest first.
func (s *Store) LinksForResource(ctx context.Context, resourceID int64, limit int) ([]ResourceLink, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []ResourceLink
	if err := s.db.SelectContext(ctx, &out, s.rebind(
		`SELECT id, source_resource_id, target_resource_id, link_type, created_at, metadata, weight
		 FROM ResourceLinks
		 WHERE source_resource_id = ? OR target_resource_id = ?
		 ORDER BY weight DESC, id LIMIT ?`),
		resourceID, resourceID, limit); err != nil {
		return nil, storageErr("loading resource links", "resource", resourceID, err)
	}
	return out, nil
}

// AllResourceLinks lists every edge, for graph re-mirroring.
func (s *Store) AllResourceLinks(ctx context.Context) ([]ResourceLink, error) {
	var out []ResourceLink
	if err := s.db.SelectContext(ctx, &out,
		`SELECT id, source_resource_id, target_resource_id, link_type, created_at, metadata, weight
		 FROM ResourceLinks ORDER BY id`); err != nil {
		return nil, storageErr("listing resource links", "resource link", nil, err)
	}
	return out, nil
}

// DeleteResourceLink removes one edge by id and returns the deleted
// row so callers can drop its graph mirror.
func (s *Store) DeleteResourceLink(ctx context.Context, id int64) (*ResourceLink, error) {
	var l ResourceLink
	if err := s.db.GetContext(ctx, &l, s.rebind(
		`SELECT id, source_resource_id, target_resource_id, link_type, created_at, metadata, weight
		 FROM ResourceLinks WHERE id = ?`), id); err != nil {
		return nil, storageErr("loading resource link", "resource link", id, err)
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM ResourceLinks WHERE id = ?`), id); err != nil {
		return nil, storageErr("deleting resource link", "resource link", id, err)
	}
	return &l, nil
}
