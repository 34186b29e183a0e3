package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// One row per CSV import; reference points belong to the latest one.
		`CREATE TABLE IF NOT EXISTS palette_imports (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			rows INTEGER NOT NULL,
			loaded INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			labels INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS reference_points (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			import_id TEXT NOT NULL REFERENCES palette_imports(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			label TEXT NOT NULL,
			r INTEGER NOT NULL CHECK(r BETWEEN 0 AND 255),
			g INTEGER NOT NULL CHECK(g BETWEEN 0 AND 255),
			b INTEGER NOT NULL CHECK(b BETWEEN 0 AND 255)
		)`,

		// Dispatch history, one row per sink delivery.
		`CREATE TABLE IF NOT EXISTS dispatches (
			id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL,
			slot TEXT NOT NULL,
			label TEXT NOT NULL,
			command TEXT NOT NULL,
			sink TEXT NOT NULL,
			status TEXT NOT NULL CHECK(status IN ('ok', 'failed')),
			attempts INTEGER NOT NULL DEFAULT 1,
			error TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_reference_points_seq ON reference_points(seq)`,
		`CREATE INDEX IF NOT EXISTS idx_dispatches_created_at ON dispatches(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_dispatches_job_id ON dispatches(job_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
