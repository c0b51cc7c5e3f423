package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltmc/internal/apperrors"
	"ltmc/internal/config"
	"ltmc/internal/logging"
)

func TestSanitizeTypeLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"references", "`references`"},
		{"semantic_similarity_v1", "`semantic_similarity_v1`"},
		{"RelatesTo", "`RelatesTo`"},
		{"_private", "`_private`"},
		{"relates to", "`relates_to`"},
		{"9lives", "`_9lives`"},
		{"drop]->(n) DETACH DELETE n //", "`drop_____n__DETACH_DELETE_n___`"},
		{"back`tick", "`back_tick`"},
		{"", "`_`"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeTypeLabel(tt.in), tt.in)
	}
}

func TestUnconfiguredBackendDegrades(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, config.GraphConfig{Timeout: 1}, logging.NewNoopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(ctx) })

	assert.False(t, s.Available())

	err = s.UpsertResourceNode(ctx, 1, map[string]interface{}{"file_name": "a.md"})
	assert.ErrorIs(t, err, apperrors.ErrGraphUnavailable)

	err = s.CreateEdge(ctx, 1, 2, "references", nil)
	assert.ErrorIs(t, err, apperrors.ErrGraphUnavailable)

	_, err = s.Neighbors(ctx, 1, "", 1)
	assert.ErrorIs(t, err, apperrors.ErrGraphUnavailable)

	assert.Equal(t, apperrors.ErrorCodeUnavailable, apperrors.Code(s.Ping(ctx)))
}

func TestCreateEdgeAcceptsFreeFormTypes(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, config.GraphConfig{Timeout: 1}, logging.NewNoopLogger())
	require.NoError(t, err)

	// Free-form types are never rejected; a degraded backend is the
	// only reason the write cannot proceed.
	err = s.CreateEdge(ctx, 1, 2, "relates to", nil)
	assert.ErrorIs(t, err, apperrors.ErrGraphUnavailable)
	assert.False(t, apperrors.IsValidationError(err))
}
