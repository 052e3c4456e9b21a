package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skaldlabs/skald-sub002/pkg/types"
)

func TestRAGConfig_Validate(t *testing.T) {
	assert.NoError(t, types.DefaultRAGConfig().Validate())

	cfg := types.DefaultRAGConfig()
	cfg.VectorSearch.TopK = 0
	assert.Error(t, cfg.Validate())

	cfg = types.DefaultRAGConfig()
	cfg.VectorSearch.TopK = 201
	assert.Error(t, cfg.Validate())

	cfg = types.DefaultRAGConfig()
	cfg.Reranking.TopK = 101
	assert.Error(t, cfg.Validate())

	cfg = types.DefaultRAGConfig()
	cfg.VectorSearch.TopK = 10
	cfg.Reranking.TopK = 20
	assert.Error(t, cfg.Validate(), "rerank top-k above vector top-k")

	cfg.Reranking.Enabled = false
	assert.NoError(t, cfg.Validate(), "rerank bounds only apply when reranking is enabled")
}
