package workspace

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/caldew/loom/internal/dataset"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the ledger database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the ledger database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "loom.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Resources ---

// SaveResource inserts the resource, or refreshes status/detail when a row
// for the same kind and name already exists. A missing ID is generated.
func (s *Store) SaveResource(r Resource) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}

	_, err := s.db.Exec(`
		INSERT INTO resources (id, kind, name, status, detail, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, name) DO UPDATE SET
			status = excluded.status,
			detail = excluded.detail,
			updated_at = excluded.updated_at`,
		r.ID, string(r.Kind), r.Name, r.Status, r.Detail,
		r.CreatedAt.Format(time.RFC3339), r.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

// UpdateResourceStatus sets the status (and detail, when non-empty) of an
// existing resource.
func (s *Store) UpdateResourceStatus(kind ResourceKind, name, status, detail string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	var (
		res sql.Result
		err error
	)
	if detail == "" {
		res, err = s.db.Exec(`UPDATE resources SET status = ?, updated_at = ? WHERE kind = ? AND name = ?`,
			status, now, string(kind), name)
	} else {
		res, err = s.db.Exec(`UPDATE resources SET status = ?, detail = ?, updated_at = ? WHERE kind = ? AND name = ?`,
			status, detail, now, string(kind), name)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetResource returns the resource of the given kind and name.
func (s *Store) GetResource(kind ResourceKind, name string) (Resource, error) {
	row := s.db.QueryRow(`
		SELECT id, kind, name, status, detail, created_at, updated_at
		FROM resources WHERE kind = ? AND name = ?`, string(kind), name)
	return scanResource(row)
}

// ListResources returns resources of the given kind, or of every kind when
// kind is empty, ordered by kind then name.
func (s *Store) ListResources(kind ResourceKind) ([]Resource, error) {
	query := `SELECT id, kind, name, status, detail, created_at, updated_at FROM resources`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY kind ASC, name ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// DeleteResource removes the resource row.
func (s *Store) DeleteResource(kind ResourceKind, name string) error {
	res, err := s.db.Exec(`DELETE FROM resources WHERE kind = ? AND name = ?`, string(kind), name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResource(row rowScanner) (Resource, error) {
	var r Resource
	var kind, createdAt, updatedAt string
	err := row.Scan(&r.ID, &kind, &r.Name, &r.Status, &r.Detail, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Resource{}, ErrNotFound
	}
	if err != nil {
		return Resource{}, err
	}
	r.Kind = ResourceKind(kind)
	if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Resource{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if r.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Resource{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return r, nil
}

// --- Datasets ---

// SaveDataset inserts the manifest, replacing any prior manifest of the same
// name. A zero CreatedAt is stamped with the current time.
func (s *Store) SaveDataset(m dataset.Manifest) error {
	features, err := json.Marshal(m.Features)
	if err != nil {
		return fmt.Errorf("encoding features: %w", err)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.Exec(`
		INSERT INTO datasets (id, name, path, target, features, row_count, query_id, artifact_uri, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			path = excluded.path,
			target = excluded.target,
			features = excluded.features,
			row_count = excluded.row_count,
			query_id = excluded.query_id,
			artifact_uri = excluded.artifact_uri,
			created_at = excluded.created_at`,
		uuid.New().String(), m.Name, m.Path, m.Target, string(features),
		m.Rows, m.QueryID, m.ArtifactURI, m.CreatedAt.Format(time.RFC3339),
	)
	return err
}

// GetDataset returns the manifest saved under name.
func (s *Store) GetDataset(name string) (dataset.Manifest, error) {
	row := s.db.QueryRow(`
		SELECT name, path, target, features, row_count, query_id, artifact_uri, created_at
		FROM datasets WHERE name = ?`, name)
	return scanDataset(row)
}

// LatestDataset returns the most recently built manifest.
func (s *Store) LatestDataset() (dataset.Manifest, error) {
	row := s.db.QueryRow(`
		SELECT name, path, target, features, row_count, query_id, artifact_uri, created_at
		FROM datasets ORDER BY created_at DESC, rowid DESC LIMIT 1`)
	return scanDataset(row)
}

// ListDatasets returns all manifests, newest first.
func (s *Store) ListDatasets() ([]dataset.Manifest, error) {
	rows, err := s.db.Query(`
		SELECT name, path, target, features, row_count, query_id, artifact_uri, created_at
		FROM datasets ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []dataset.Manifest
	for rows.Next() {
		m, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

func scanDataset(row rowScanner) (dataset.Manifest, error) {
	var m dataset.Manifest
	var features, createdAt string
	err := row.Scan(&m.Name, &m.Path, &m.Target, &features, &m.Rows, &m.QueryID, &m.ArtifactURI, &createdAt)
	if err == sql.ErrNoRows {
		return dataset.Manifest{}, ErrNotFound
	}
	if err != nil {
		return dataset.Manifest{}, err
	}
	if err := json.Unmarshal([]byte(features), &m.Features); err != nil {
		return dataset.Manifest{}, fmt.Errorf("decoding features: %w", err)
	}
	if m.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return dataset.Manifest{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return m, nil
}
