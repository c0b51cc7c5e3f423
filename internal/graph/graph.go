// Package graph persists typed relationships between resources in
// neo4j, with a relational fallback when the backend is absent or
// unreachable.
package graph

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"ltmc/internal/apperrors"
	"ltmc/internal/config"
	"ltmc/internal/logging"
)

// Node is a graph node as returned to callers.
type Node struct {
	ID         int64                  `json:"id"`
	Labels     []string               `json:"labels"`
	Properties map[string]interface{} `json:"properties"`
}

// Edge is a typed relationship between two resource nodes.
type Edge struct {
	SourceID   int64                  `json:"source_id"`
	TargetID   int64                  `json:"target_id"`
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// Store wraps the neo4j driver. A nil driver means the backend was
// never configured; a tripped available flag means it went away at
// runtime. Both surface the same degraded behavior.
type Store struct {
	driver    neo4j.DriverWithContext
	database  string
	timeout   time.Duration
	available atomic.Bool
	logger    logging.Logger
}

// Open connects to neo4j when configured. An empty URI yields a store
// that is permanently degraded rather than an error; a configured but
// unreachable backend likewise degrades with a WARN.
func Open(ctx context.Context, cfg config.GraphConfig, logger logging.Logger) (*Store, error) {
	s := &Store{
		database: cfg.Database,
		timeout:  time.Duration(cfg.Timeout) * time.Second,
		logger:   logger.WithComponent("graph"),
	}
	if strings.TrimSpace(cfg.URI) == "" {
		s.logger.Info("graph backend not configured, running degraded")
		return s, nil
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI,
		neo4j.BasicAuth(cfg.User, cfg.Password, ""),
		func(c *neo4j.Config) {
			c.SocketConnectTimeout = s.timeout
		})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorCodeGraph, "initializing neo4j driver", err)
	}
	s.driver = driver

	vctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		s.logger.Warn("graph backend unreachable, running degraded", "error", err.Error())
		return s, nil
	}
	s.available.Store(true)
	return s, nil
}

// Available reports whether graph writes currently reach the backend.
func (s *Store) Available() bool { return s.driver != nil && s.available.Load() }

// Ping re-checks connectivity and updates the availability flag.
func (s *Store) Ping(ctx context.Context) error {
	if s.driver == nil {
		return apperrors.ErrGraphUnavailable
	}
	vctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.driver.VerifyConnectivity(vctx); err != nil {
		s.available.Store(false)
		return apperrors.Wrap(apperrors.ErrorCodeGraph, "pinging graph backend", err)
	}
	s.available.Store(true)
	return nil
}

// Close releases the driver.
func (s *Store) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}

// SanitizeTypeLabel makes a free-form link type safe to splice into
// cypher as a relationship type. Runes outside the identifier grammar
// map to underscores and a leading digit gains an underscore prefix;
// the spelling is otherwise preserved exactly, backtick-quoted.
func SanitizeTypeLabel(linkType string) string {
	var b strings.Builder
	b.Grow(len(linkType) + 2)
	for i, r := range linkType {
		switch {
		case r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "`_`"
	}
	return "`" + b.String() + "`"
}

func (s *Store) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.database,
	})
}

// markFailed trips the degraded flag and classifies the error.
func (s *Store) markFailed(op string, err error) error {
	s.available.Store(false)
	s.logger.Warn("graph operation failed, degrading", "operation", op, "error", err.Error())
	return apperrors.Wrap(apperrors.ErrorCodeGraph, op, err)
}

// UpsertResourceNode merges a Resource node keyed by its relational
// id. In degraded mode it reports Unavailable without raising.
func (s *Store) UpsertResourceNode(ctx context.Context, resourceID int64, properties map[string]interface{}) error {
	if !s.Available() {
		return apperrors.ErrGraphUnavailable
	}
	props := map[string]interface{}{}
	for k, v := range properties {
		props[k] = v
	}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		_, err := tx.Run(ctx,
			`MERGE (r:Resource {resource_id: $id}) SET r += $props`,
			map[string]interface{}{"id": resourceID, "props": props})
		return nil, err
	})
	if err != nil {
		return s.markFailed("upserting resource node", err)
	}
	return nil
}

// CreateEdge merges a relationship whose type is the sanitized link
// type itself. When sanitization had to alter the spelling, the
// original is kept as an original_type property.
func (s *Store) CreateEdge(ctx context.Context, sourceID, targetID int64, linkType string, properties map[string]interface{}) error {
	if !s.Available() {
		return apperrors.ErrGraphUnavailable
	}
	label := SanitizeTypeLabel(linkType)

	props := map[string]interface{}{}
	if label != "`"+linkType+"`" {
		props["original_type"] = linkType
	}
	for k, v := range properties {
		props[k] = v
	}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	query := fmt.Sprintf(
		`MATCH (a:Resource {resource_id: $source})
		 MATCH (b:Resource {resource_id: $target})
		 MERGE (a)-[e:%s]->(b)
		 SET e += $props`, label)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		_, err := tx.Run(ctx, query, map[string]interface{}{
			"source": sourceID,
			"target": targetID,
			"props":  props,
		})
		return nil, err
	})
	if err != nil {
		return s.markFailed("creating edge", err)
	}
	return nil
}

// DeleteResourceNode detaches and deletes the node and everything
// hanging off it.
func (s *Store) DeleteResourceNode(ctx context.Context, resourceID int64) error {
	if !s.Available() {
		return apperrors.ErrGraphUnavailable
	}
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		_, err := tx.Run(ctx,
			`MATCH (r:Resource {resource_id: $id}) DETACH DELETE r`,
			map[string]interface{}{"id": resourceID})
		return nil, err
	})
	if err != nil {
		return s.markFailed("deleting resource node", err)
	}
	return nil
}

// DeleteEdge removes one typed relationship between two resources.
func (s *Store) DeleteEdge(ctx context.Context, sourceID, targetID int64, linkType string) error {
	if !s.Available() {
		return apperrors.ErrGraphUnavailable
	}
	label := SanitizeTypeLabel(linkType)
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	query := fmt.Sprintf(
		`MATCH (a:Resource {resource_id: $source})-[e:%s]->(b:Resource {resource_id: $target}) DELETE e`, label)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		_, err := tx.Run(ctx, query, map[string]interface{}{"source": sourceID, "target": targetID})
		return nil, err
	})
	if err != nil {
		return s.markFailed("deleting edge", err)
	}
	return nil
}

// Neighbors returns nodes within depth hops of a resource, optionally
// restricted to one relationship type.
func (s *Store) Neighbors(ctx context.Context, resourceID int64, typeFilter string, depth int) ([]Node, error) {
	if !s.Available() {
		return nil, apperrors.ErrGraphUnavailable
	}
	if depth <= 0 {
		depth = 1
	}
	rel := ""
	if typeFilter != "" {
		rel = ":" + SanitizeTypeLabel(typeFilter)
	}

	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := fmt.Sprintf(
		`MATCH (r:Resource {resource_id: $id})-[%s*1..%d]-(n:Resource)
		 RETURN DISTINCT n`, rel, depth)
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, query, map[string]interface{}{"id": resourceID})
		if err != nil {
			return nil, err
		}
		var nodes []Node
		for res.Next(ctx) {
			raw, ok := res.Record().Get("n")
			if !ok {
				continue
			}
			n, ok := raw.(neo4j.Node)
			if !ok {
				continue
			}
			nodes = append(nodes, nodeFromNeo4j(n))
		}
		return nodes, res.Err()
	})
	if err != nil {
		return nil, s.markFailed("querying neighbors", err)
	}
	nodes, _ := result.([]Node)
	return nodes, nil
}

// Query lists edges touching a resource, optionally filtered by type.
func (s *Store) Query(ctx context.Context, resourceID int64, relationType string) ([]Edge, error) {
	if !s.Available() {
		return nil, apperrors.ErrGraphUnavailable
	}
	rel := ""
	if relationType != "" {
		rel = ":" + SanitizeTypeLabel(relationType)
	}

	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := fmt.Sprintf(
		`MATCH (a:Resource {resource_id: $id})-[e%s]-(b:Resource)
		 RETURN a.resource_id AS source, b.resource_id AS target, type(e) AS type, properties(e) AS props`, rel)
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, query, map[string]interface{}{"id": resourceID})
		if err != nil {
			return nil, err
		}
		var edges []Edge
		for res.Next(ctx) {
			rec := res.Record()
			e := Edge{}
			if v, ok := rec.Get("source"); ok {
				e.SourceID, _ = v.(int64)
			}
			if v, ok := rec.Get("target"); ok {
				e.TargetID, _ = v.(int64)
			}
			if v, ok := rec.Get("type"); ok {
				e.Type, _ = v.(string)
			}
			if v, ok := rec.Get("props"); ok {
				e.Properties, _ = v.(map[string]interface{})
			}
			edges = append(edges, e)
		}
		return edges, res.Err()
	})
	if err != nil {
		return nil, s.markFailed("querying edges", err)
	}
	edges, _ := result.([]Edge)
	return edges, nil
}

// AllEdges lists every typed relationship between resources, for the
// consistency sweep.
func (s *Store) AllEdges(ctx context.Context) ([]Edge, error) {
	if !s.Available() {
		return nil, apperrors.ErrGraphUnavailable
	}
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx,
			`MATCH (a:Resource)-[e]->(b:Resource)
			 RETURN a.resource_id AS source, b.resource_id AS target, type(e) AS type`, nil)
		if err != nil {
			return nil, err
		}
		var edges []Edge
		for res.Next(ctx) {
			rec := res.Record()
			e := Edge{}
			if v, ok := rec.Get("source"); ok {
				e.SourceID, _ = v.(int64)
			}
			if v, ok := rec.Get("target"); ok {
				e.TargetID, _ = v.(int64)
			}
			if v, ok := rec.Get("type"); ok {
				e.Type, _ = v.(string)
			}
			edges = append(edges, e)
		}
		return edges, res.Err()
	})
	if err != nil {
		return nil, s.markFailed("listing edges", err)
	}
	edges, _ := result.([]Edge)
	return edges, nil
}

func nodeFromNeo4j(n neo4j.Node) Node {
	var id int64
	if v, ok := n.Props["resource_id"]; ok {
		id, _ = v.(int64)
	}
	return Node{ID: id, Labels: n.Labels, Properties: n.Props}
}
