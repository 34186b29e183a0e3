package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Dispatch statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// DispatchRecord is one delivery of a command to a sink.
type DispatchRecord struct {
	ID         string    `json:"id"`
	JobID      string    `json:"job_id"`
	Slot       string    `json:"slot"`
	Label      string    `json:"label"`
	Command    string    `json:"command"`
	Sink       string    `json:"sink"`
	Status     string    `json:"status"`
	Attempts   int       `json:"attempts"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// DispatchRepository stores dispatch history.
type DispatchRepository struct {
	db *sql.DB
}

// Dispatches returns the dispatch repository for this store.
func (s *Store) Dispatches() *DispatchRepository {
	return &DispatchRepository{db: s.db}
}

// Create inserts a record, assigning an ID and timestamp when missing.
func (r *DispatchRepository) Create(d *DispatchRecord) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	if d.Status == "" {
		d.Status = StatusOK
		if d.Error != "" {
			d.Status = StatusFailed
		}
	}

	_, err := r.db.Exec(
		`INSERT INTO dispatches (id, job_id, slot, label, command, sink, status, attempts, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.JobID, d.Slot, d.Label, d.Command, d.Sink, d.Status, d.Attempts, d.Error, d.DurationMs, d.CreatedAt,
	)
	return err
}

// List returns up to limit records, newest first. limit <= 0 returns all.
func (r *DispatchRepository) List(limit int) ([]*DispatchRecord, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(
		`SELECT id, job_id, slot, label, command, sink, status, attempts, error, duration_ms, created_at
		 FROM dispatches ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*DispatchRecord
	for rows.Next() {
		d := &DispatchRecord{}
		err := rows.Scan(&d.ID, &d.JobID, &d.Slot, &d.Label, &d.Command, &d.Sink,
			&d.Status, &d.Attempts, &d.Error, &d.DurationMs, &d.CreatedAt)
		if err != nil {
			return nil, err
		}
		records = append(records, d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// Count returns the number of records with the given status, or all records
// when status is empty.
func (r *DispatchRepository) Count(status string) (int, error) {
	var n int
	var err error
	if status == "" {
		err = r.db.QueryRow(`SELECT COUNT(*) FROM dispatches`).Scan(&n)
	} else {
		err = r.db.QueryRow(`SELECT COUNT(*) FROM dispatches WHERE status = ?`, status).Scan(&n)
	}
	return n, err
}

// Prune deletes records older than the cutoff and returns how many went.
func (r *DispatchRepository) Prune(before time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM dispatches WHERE created_at < ?`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
