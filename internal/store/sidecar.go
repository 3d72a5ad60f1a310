package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime"
	"strings"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by vertex lookups that match no row.
var ErrNotFound = errors.New("vertex not found")

// Vertex is one row of the vertexes table. Redirect sources are stored
// alongside canonical vertices; only canonical ones appear in the adjacency
// files.
type Vertex struct {
	ID         uint32
	Title      []byte
	IsRedirect bool
}

// Sidecar wraps the per-generation graph.db SQLite database:
//
//	vertexes(id INTEGER PRIMARY KEY, title BLOB NOT NULL, is_redirect INTEGER NOT NULL)
//	redirects(from_id INTEGER PRIMARY KEY, to_id INTEGER NOT NULL)
//	build_info(key TEXT PRIMARY KEY, value TEXT)
//
// Builds open it writable with durability pragmas relaxed; the query engine
// opens it read-only with a pool sized to the worker count.
type Sidecar struct {
	db *sql.DB
}

// OpenSidecar opens graph.db for building and creates the schema.
func OpenSidecar(path string) (*Sidecar, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sidecar %s: %w", path, err)
	}
	// Single writer; SQLite serializes anyway and one connection avoids
	// SQLITE_BUSY during bulk load.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA synchronous = OFF",
		"PRAGMA journal_mode = MEMORY",
		"PRAGMA temp_store = MEMORY",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sidecar pragma: %w", err)
		}
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS vertexes (
			id INTEGER PRIMARY KEY,
			title BLOB NOT NULL,
			is_redirect INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS redirects (
			from_id INTEGER PRIMARY KEY,
			to_id INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS build_info (
			key TEXT PRIMARY KEY,
			value TEXT
		);
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sidecar schema: %w", err)
	}
	return &Sidecar{db: db}, nil
}

// OpenSidecarRead opens graph.db read-only for the query engine.
func OpenSidecarRead(path string) (*Sidecar, error) {
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open sidecar %s: %w", path, err)
	}
	db.SetMaxOpenConns(runtime.NumCPU())
	return &Sidecar{db: db}, nil
}

func (s *Sidecar) Close() error { return s.db.Close() }

// VertexWriter batches vertex inserts inside one transaction.
type VertexWriter struct {
	tx   *sql.Tx
	stmt *sql.Stmt
}

func (s *Sidecar) NewVertexWriter() (*VertexWriter, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin vertex load: %w", err)
	}
	stmt, err := tx.Prepare("INSERT INTO vertexes (id, title, is_redirect) VALUES (?, ?, ?)")
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("prepare vertex insert: %w", err)
	}
	return &VertexWriter{tx: tx, stmt: stmt}, nil
}

func (w *VertexWriter) Write(v Vertex) error {
	_, err := w.stmt.Exec(int64(v.ID), v.Title, boolInt(v.IsRedirect))
	return err
}

func (w *VertexWriter) Commit() error {
	if err := w.stmt.Close(); err != nil {
		_ = w.tx.Rollback()
		return err
	}
	return w.tx.Commit()
}

func (w *VertexWriter) Rollback() { _ = w.tx.Rollback() }

// CreateTitleIndex builds the title lookup index after bulk load; inserting
// into an indexed table is measurably slower than indexing afterwards.
func (s *Sidecar) CreateTitleIndex() error {
	_, err := s.db.Exec("CREATE INDEX IF NOT EXISTS vertex_title_ix ON vertexes (title)")
	if err != nil {
		return fmt.Errorf("create title index: %w", err)
	}
	return nil
}

// FirstDuplicateTitle returns one title that maps to more than one canonical
// vertex, or nil when the canonical title set is unique.
func (s *Sidecar) FirstDuplicateTitle() ([]byte, error) {
	row := s.db.QueryRow(`
		SELECT title FROM vertexes WHERE is_redirect = 0
		GROUP BY title HAVING COUNT(*) > 1 LIMIT 1`)
	var title []byte
	err := row.Scan(&title)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan duplicate titles: %w", err)
	}
	return title, nil
}

// LookupTitles resolves a batch of titles to vertices in one query. The
// result maps title (as string) to the vertex row. Missing titles are simply
// absent. Chunk sizes should stay below SQLite's bound-parameter limit.
func (s *Sidecar) LookupTitles(ctx context.Context, titles [][]byte) (map[string]Vertex, error) {
	if len(titles) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat(",?", len(titles))[1:]
	args := make([]any, len(titles))
	for i, t := range titles {
		args[i] = t
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, is_redirect FROM vertexes WHERE title IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("query vertexes by title: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := make(map[string]Vertex, len(titles))
	for rows.Next() {
		var v Vertex
		var id int64
		var isRedirect int64
		if err := rows.Scan(&id, &v.Title, &isRedirect); err != nil {
			return nil, err
		}
		v.ID = uint32(id)
		v.IsRedirect = isRedirect != 0
		out[string(v.Title)] = v
	}
	return out, rows.Err()
}

// RedirectWriter batches redirect inserts inside one transaction.
type RedirectWriter struct {
	tx   *sql.Tx
	stmt *sql.Stmt
}

func (s *Sidecar) NewRedirectWriter() (*RedirectWriter, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin redirect load: %w", err)
	}
	stmt, err := tx.Prepare("INSERT OR REPLACE INTO redirects (from_id, to_id) VALUES (?, ?)")
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("prepare redirect insert: %w", err)
	}
	return &RedirectWriter{tx: tx, stmt: stmt}, nil
}

func (w *RedirectWriter) Write(from, to uint32) error {
	_, err := w.stmt.Exec(int64(from), int64(to))
	return err
}

func (w *RedirectWriter) Commit() error {
	if err := w.stmt.Close(); err != nil {
		_ = w.tx.Rollback()
		return err
	}
	return w.tx.Commit()
}

func (w *RedirectWriter) Rollback() { _ = w.tx.Rollback() }

// LoadRedirects reads the whole redirects table into memory. At Wikipedia
// scale this is ~10M entries, well within the build's RAM budget, and it
// keeps edge resolution off the SQL path.
func (s *Sidecar) LoadRedirects(ctx context.Context) (map[uint32]uint32, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT from_id, to_id FROM redirects")
	if err != nil {
		return nil, fmt.Errorf("query redirects: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := make(map[uint32]uint32)
	for rows.Next() {
		var from, to int64
		if err := rows.Scan(&from, &to); err != nil {
			return nil, err
		}
		out[uint32(from)] = uint32(to)
	}
	return out, rows.Err()
}

// VertexByID looks up one vertex; ErrNotFound when absent.
func (s *Sidecar) VertexByID(ctx context.Context, id uint32) (Vertex, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, title, is_redirect FROM vertexes WHERE id = ?", int64(id))
	return scanVertex(row)
}

// VertexByTitle looks up one vertex by exact title; ErrNotFound when absent.
func (s *Sidecar) VertexByTitle(ctx context.Context, title []byte) (Vertex, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, title, is_redirect FROM vertexes WHERE title = ? LIMIT 1", title)
	return scanVertex(row)
}

func scanVertex(row *sql.Row) (Vertex, error) {
	var v Vertex
	var id, isRedirect int64
	err := row.Scan(&id, &v.Title, &isRedirect)
	if err == sql.ErrNoRows {
		return Vertex{}, ErrNotFound
	}
	if err != nil {
		return Vertex{}, err
	}
	v.ID = uint32(id)
	v.IsRedirect = isRedirect != 0
	return v, nil
}

// MaxVertexID returns the highest page id across all rows (canonical and
// redirect), which bounds the index file length.
func (s *Sidecar) MaxVertexID(ctx context.Context) (uint32, error) {
	var maxID sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT MAX(id) FROM vertexes").Scan(&maxID)
	if err != nil {
		return 0, fmt.Errorf("query max vertex id: %w", err)
	}
	if !maxID.Valid {
		return 0, nil
	}
	return uint32(maxID.Int64), nil
}

// IterateCanonical streams every canonical vertex in id order.
func (s *Sidecar) IterateCanonical(ctx context.Context, fn func(Vertex) error) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, is_redirect FROM vertexes WHERE is_redirect = 0 ORDER BY id")
	if err != nil {
		return fmt.Errorf("query canonical vertexes: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var v Vertex
		var id, isRedirect int64
		if err := rows.Scan(&id, &v.Title, &isRedirect); err != nil {
			return err
		}
		v.ID = uint32(id)
		v.IsRedirect = isRedirect != 0
		if err := fn(v); err != nil {
			return err
		}
	}
	return rows.Err()
}

// IterateIDs streams the ids of all redirect or all canonical rows.
func (s *Sidecar) IterateIDs(ctx context.Context, redirect bool, fn func(uint32) error) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM vertexes WHERE is_redirect = ? ORDER BY id", boolInt(redirect))
	if err != nil {
		return fmt.Errorf("query vertex ids: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		if err := fn(uint32(id)); err != nil {
			return err
		}
	}
	return rows.Err()
}

// SetBuildInfo upserts one build_info key.
func (s *Sidecar) SetBuildInfo(key, value string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO build_info (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("set build_info %s: %w", key, err)
	}
	return nil
}

// BuildInfo reads one build_info value; empty string when unset.
func (s *Sidecar) BuildInfo(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM build_info WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get build_info %s: %w", key, err)
	}
	return value, nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
