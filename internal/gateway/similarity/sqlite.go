package similarity

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore 将文档、元数据与向量保存在独立的 SQLite 文件中，检索时按余弦相似度排序。
type SQLiteStore struct {
	db       *sql.DB
	embedder Embedder
}

// NewSQLiteStore 打开记忆库；path 为 ":memory:" 时使用内存库。
func NewSQLiteStore(path string, embedder Embedder) (*SQLiteStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("memory store path 不能为空")
	}
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// 内存库每个连接各自独立，只能保留一个连接
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS activity_memory (
		id TEXT PRIMARY KEY,
		document TEXT NOT NULL,
		metadata TEXT,
		vector BLOB NOT NULL,
		created_at DATETIME NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init memory schema: %w", err)
	}
	return &SQLiteStore{db: db, embedder: embedder}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AddActivity 写入或覆盖一条记忆。
func (s *SQLiteStore) AddActivity(ctx context.Context, id, document string, metadata map[string]any) error {
	vecs, err := s.embedder.Embed(ctx, []string{document})
	if err != nil {
		return fmt.Errorf("embed document: %w", err)
	}
	if len(vecs) != 1 {
		return fmt.Errorf("embed document: got %d vectors", len(vecs))
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO activity_memory (id, document, metadata, vector, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET document=excluded.document, metadata=excluded.metadata, vector=excluded.vector`,
		id, document, string(meta), encodeVector(vecs[0]), time.Now().UTC())
	return err
}

// FindSimilar 返回最相似的 k 条记忆，按相似度降序，平分时按 id 升序。
func (s *SQLiteStore) FindSimilar(ctx context.Context, query string, k int) ([]Match, error) {
	if k <= 0 {
		k = 1
	}
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}
	q := vecs[0]

	rows, err := s.db.QueryContext(ctx, `SELECT id, document, metadata, vector FROM activity_memory`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Match
	for rows.Next() {
		var (
			m    Match
			meta sql.NullString
			blob []byte
		)
		if err := rows.Scan(&m.ID, &m.Document, &meta, &blob); err != nil {
			return nil, err
		}
		if meta.Valid && meta.String != "" {
			_ = json.Unmarshal([]byte(meta.String), &m.Metadata)
		}
		m.Similarity = Cosine(q, decodeVector(blob))
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Count 返回记忆条数。
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity_memory`).Scan(&n)
	return n, err
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
