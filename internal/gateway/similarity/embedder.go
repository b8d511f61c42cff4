package similarity

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"time"

	"tradepilot/internal/metrics"

	"github.com/go-resty/resty/v2"
)

// OpenAIEmbedder 调用 OpenAI 兼容的 /embeddings 接口。
type OpenAIEmbedder struct {
	client *resty.Client
	model  string
}

func NewOpenAIEmbedder(baseURL, apiKey, model string, timeout time.Duration) *OpenAIEmbedder {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := resty.New().SetBaseURL(base).SetTimeout(timeout)
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return &OpenAIEmbedder{client: c, model: model}
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var out embeddingResponse
	start := time.Now()
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"model": e.model, "input": texts}).
		SetResult(&out).
		ForceContentType("application/json").
		Post("/embeddings")
	metrics.ObserveExternal("embedding", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("embedding status=%d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("embedding: expected %d vectors, got %d", len(texts), len(out.Data))
	}
	vecs := make([][]float32, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, fmt.Errorf("embedding: index %d out of range", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

var hashToken = regexp.MustCompile(`[a-z0-9$+\-]+`)

// HashEmbedder 以词袋特征哈希生成向量，未配置嵌入服务时使用。
type HashEmbedder struct {
	Dim int
}

func (h HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	dim := h.Dim
	if dim <= 0 {
		dim = 256
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, dim)
		for _, tok := range hashToken.FindAllString(strings.ToLower(t), -1) {
			f := fnv.New32a()
			_, _ = f.Write([]byte(tok))
			v[f.Sum32()%uint32(dim)]++
		}
		var norm float64
		for _, x := range v {
			norm += float64(x * x)
		}
		if norm > 0 {
			n := float32(math.Sqrt(norm))
			for j := range v {
				v[j] /= n
			}
		}
		out[i] = v
	}
	return out, nil
}
