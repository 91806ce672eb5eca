package retrieval

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	_ "modernc.org/sqlite"
)

// SQLiteEmbeddingStore is the persistent tier for EmbeddingCache's term
// vectors (§4.3 "optional persistent tier (on-disk or a shared KV
// store)"), grounded in the teacher's internal/store vector persistence
// — specifically vec_compat.go's cgo-free path, which registers a
// custom vec0 virtual table and a vector_distance_cos scalar function
// against modernc.org/sqlite rather than the cgo-bound
// asg017/sqlite-vec-go-bindings + mattn/go-sqlite3 pair init_vec.go
// uses. This store needs none of that virtual table's ANN-search
// machinery — term/chunk lookups here are by exact key, never
// similarity search over the table — so it keeps only the piece that
// transfers: modernc.org/sqlite as a pure-Go (no cgo) SQLite driver,
// storing each vector as a little-endian float32 BLOB the same way
// vec_compat.go encodes vector columns.
type SQLiteEmbeddingStore struct {
	db *sql.DB
}

// NewSQLiteEmbeddingStore opens (creating if needed) a SQLite database
// at path and ensures its single embeddings table exists.
func NewSQLiteEmbeddingStore(path string) (*SQLiteEmbeddingStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("retrieval: open embedding store: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS embeddings (
		key   TEXT PRIMARY KEY,
		vec   BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("retrieval: init embedding store schema: %w", err)
	}
	return &SQLiteEmbeddingStore{db: db}, nil
}

// Get returns the vector stored under key, if any.
func (s *SQLiteEmbeddingStore) Get(key string) ([]float32, bool) {
	var blob []byte
	err := s.db.QueryRow(`SELECT vec FROM embeddings WHERE key = ?`, key).Scan(&blob)
	if err != nil {
		return nil, false
	}
	return decodeFloat32Blob(blob), true
}

// Set persists vec under key, overwriting any existing entry.
func (s *SQLiteEmbeddingStore) Set(key string, vec []float32) {
	blob := encodeFloat32Blob(vec)
	_, _ = s.db.Exec(
		`INSERT INTO embeddings(key, vec) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET vec = excluded.vec`,
		key, blob,
	)
}

// Close releases the underlying database handle.
func (s *SQLiteEmbeddingStore) Close() error { return s.db.Close() }

func encodeFloat32Blob(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeFloat32Blob(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
