package similarity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{1, 0}, []float32{-1, 0}))
	assert.Equal(t, 0.0, Cosine([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 2}))
}

func TestSQLiteStore_FindSimilar(t *testing.T) {
	ctx := context.Background()
	st, err := NewSQLiteStore(":memory:", HashEmbedder{})
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.AddActivity(ctx, "1", "User trade on TSLA. Side: buy. Context: earnings beat.", map[string]any{"activity_id": 1, "symbol": "TSLA"}))
	require.NoError(t, st.AddActivity(ctx, "2", "User watch on GLD. Side: none. Context: gold rally.", map[string]any{"activity_id": 2}))
	require.NoError(t, st.AddActivity(ctx, "1", "User trade on TSLA. Side: buy. Context: earnings beat.", map[string]any{"activity_id": 1, "symbol": "TSLA"}))

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	matches, err := st.FindSimilar(ctx, "News about TSLA: earnings beat", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "1", matches[0].ID)
	assert.Equal(t, "TSLA", matches[0].Metadata["symbol"])
	assert.Greater(t, matches[0].Similarity, 0.0)
	assert.LessOrEqual(t, matches[0].Similarity, 1.0)
}

func TestSQLiteStore_Empty(t *testing.T) {
	st, err := NewSQLiteStore(":memory:", HashEmbedder{Dim: 16})
	require.NoError(t, err)
	defer st.Close()
	matches, err := st.FindSimilar(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestOpenAIEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "text-embedding-3-small", body["model"])
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	vecs, err := NewOpenAIEmbedder(srv.URL, "k", "", time.Second).Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
}
