package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/evaluation"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

var ErrModelNotFound = errors.New("model not found")

const schema = `
CREATE TABLE IF NOT EXISTS models (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	algorithm   TEXT NOT NULL,
	dataset     TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL,
	accuracy    REAL NOT NULL,
	macro_f1    REAL NOT NULL,
	weighted_f1 REAL NOT NULL,
	report      TEXT NOT NULL,
	artifact    BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS models_algorithm ON models(algorithm);
`

// Entry is one registered model. Artifact and Report are only populated by
// Get and Best.
type Entry struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Algorithm  string             `json:"algorithm"`
	Dataset    string             `json:"dataset,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	Accuracy   float64            `json:"accuracy"`
	MacroF1    float64            `json:"macro_f1"`
	WeightedF1 float64            `json:"weighted_f1"`
	Report     *evaluation.Report `json:"report,omitempty"`
	Artifact   *ModelArtifact     `json:"-"`
}

// Registry indexes trained artifacts and their evaluation in a sqlite file.
type Registry struct {
	db  *sql.DB
	now func() time.Time
}

func OpenRegistry(path string) (*Registry, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create registry schema: %w", err)
	}

	return &Registry{db: db, now: time.Now}, nil
}

func (r *Registry) Close() error {
	return r.db.Close()
}

// Register stores the artifact and its report under a fresh id.
func (r *Registry) Register(ctx context.Context, name, dataset string, artifact *ModelArtifact, report *evaluation.Report) (string, error) {
	blob, err := json.Marshal(artifact)
	if err != nil {
		return "", fmt.Errorf("failed to encode artifact: %w", err)
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	id := uuid.NewString()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO models (id, name, algorithm, dataset, created_at, accuracy, macro_f1, weighted_f1, report, artifact)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, name, artifact.Algorithm, dataset, r.now().UTC(),
		report.Accuracy, report.MacroF1, report.WeightedF1, string(reportJSON), blob)
	if err != nil {
		return "", fmt.Errorf("failed to register model: %w", err)
	}

	return id, nil
}

const entryColumns = `id, name, algorithm, dataset, created_at, accuracy, macro_f1, weighted_f1`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner, extra ...any) (*Entry, error) {
	var e Entry
	dest := append([]any{&e.ID, &e.Name, &e.Algorithm, &e.Dataset, &e.CreatedAt, &e.Accuracy, &e.MacroF1, &e.WeightedF1}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &e, nil
}

// Get loads one entry with its artifact and report.
func (r *Registry) Get(ctx context.Context, id string) (*Entry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+`, report, artifact FROM models WHERE id = ?`, id)
	return loadFull(row, id)
}

// Best returns the most accurate model, optionally restricted to one
// algorithm. Older entries win ties.
func (r *Registry) Best(ctx context.Context, algorithm string) (*Entry, error) {
	query := `SELECT ` + entryColumns + `, report, artifact FROM models`
	args := []any{}
	if algorithm != "" {
		query += ` WHERE algorithm = ?`
		args = append(args, algorithm)
	}
	query += ` ORDER BY accuracy DESC, created_at ASC, id ASC LIMIT 1`

	return loadFull(r.db.QueryRowContext(ctx, query, args...), algorithm)
}

func loadFull(row *sql.Row, key string) (*Entry, error) {
	var reportJSON string
	var blob []byte

	e, err := scanEntry(row, &reportJSON, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}

	e.Report = &evaluation.Report{}
	if err := json.Unmarshal([]byte(reportJSON), e.Report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	if e.Artifact, err = Unmarshal(blob); err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %w", err)
	}

	return e, nil
}

// List returns every entry, newest first, without artifacts.
func (r *Registry) List(ctx context.Context) ([]*Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM models ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read model: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *Registry) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM models WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete model: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	return nil
}
