package similarity

import (
	"context"
	"math"
)

// Match 为一次相似检索的命中结果，Similarity 位于 [0,1]。
type Match struct {
	ID         string
	Document   string
	Metadata   map[string]any
	Similarity float64
}

// Store 为用户行为记忆库。
type Store interface {
	AddActivity(ctx context.Context, id, document string, metadata map[string]any) error
	FindSimilar(ctx context.Context, query string, k int) ([]Match, error)
}

// Embedder 将文本转换为向量。
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Cosine 计算余弦相似度并限制在 [0,1]，长度不一致或零向量返回 0。
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	s := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(0, math.Min(1, s))
}
