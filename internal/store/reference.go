package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/chroma/tonelight/internal/tone"
)

// PaletteImport describes one stored reference palette import.
type PaletteImport struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Rows      int       `json:"rows"`
	Loaded    int       `json:"loaded"`
	Skipped   int       `json:"skipped"`
	Labels    int       `json:"labels"`
	CreatedAt time.Time `json:"created_at"`
}

// ReferenceRepository stores the reference palette.
type ReferenceRepository struct {
	db *sql.DB
}

// References returns the reference repository for this store.
func (s *Store) References() *ReferenceRepository {
	return &ReferenceRepository{db: s.db}
}

// Replace swaps the stored palette for points in a single transaction.
// Points keep their order through the seq column.
func (r *ReferenceRepository) Replace(source string, points []tone.ReferencePoint, report tone.LoadReport) (*PaletteImport, error) {
	if len(points) == 0 {
		return nil, tone.ErrEmptyPalette
	}

	imp := &PaletteImport{
		ID:        uuid.NewString(),
		Source:    source,
		Rows:      report.Rows,
		Loaded:    report.Loaded,
		Skipped:   report.Skipped,
		Labels:    report.Labels,
		CreatedAt: time.Now(),
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM palette_imports`); err != nil {
		return nil, err
	}

	_, err = tx.Exec(
		`INSERT INTO palette_imports (id, source, rows, loaded, skipped, labels, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		imp.ID, imp.Source, imp.Rows, imp.Loaded, imp.Skipped, imp.Labels, imp.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	stmt, err := tx.Prepare(`INSERT INTO reference_points (import_id, seq, label, r, g, b) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	for i, p := range points {
		if _, err := stmt.Exec(imp.ID, i, p.Label, p.Sample.R, p.Sample.G, p.Sample.B); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return imp, nil
}

// List returns the stored reference points in load order.
func (r *ReferenceRepository) List() ([]tone.ReferencePoint, error) {
	rows, err := r.db.Query(`SELECT label, r, g, b FROM reference_points ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []tone.ReferencePoint
	for rows.Next() {
		var p tone.ReferencePoint
		if err := rows.Scan(&p.Label, &p.Sample.R, &p.Sample.G, &p.Sample.B); err != nil {
			return nil, err
		}
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return points, nil
}

// Count returns the number of stored reference points.
func (r *ReferenceRepository) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM reference_points`).Scan(&n)
	return n, err
}

// Palette builds a palette from the stored points.
// Returns tone.ErrEmptyPalette when nothing has been imported.
func (r *ReferenceRepository) Palette() (*tone.Palette, error) {
	points, err := r.List()
	if err != nil {
		return nil, err
	}
	return tone.NewPalette(points)
}

// LastImport returns the import the stored points came from.
func (r *ReferenceRepository) LastImport() (*PaletteImport, error) {
	imp := &PaletteImport{}
	err := r.db.QueryRow(
		`SELECT id, source, rows, loaded, skipped, labels, created_at
		 FROM palette_imports ORDER BY created_at DESC LIMIT 1`,
	).Scan(&imp.ID, &imp.Source, &imp.Rows, &imp.Loaded, &imp.Skipped, &imp.Labels, &imp.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return imp, nil
}
