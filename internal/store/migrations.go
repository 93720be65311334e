package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Outcomes table - stores classification history
		`CREATE TABLE IF NOT EXISTS outcomes (
			id TEXT PRIMARY KEY,
			seq INTEGER NOT NULL,
			label TEXT NOT NULL,
			confidence REAL NOT NULL,
			probabilities TEXT NOT NULL DEFAULT '[]',
			region_x INTEGER NOT NULL DEFAULT 0,
			region_y INTEGER NOT NULL DEFAULT 0,
			region_w INTEGER NOT NULL DEFAULT 0,
			region_h INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Bindings table - stores plugin actions to run when an emotion is detected
		`CREATE TABLE IF NOT EXISTS bindings (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			plugin_name TEXT NOT NULL,
			action_name TEXT NOT NULL,
			config TEXT NOT NULL DEFAULT '{}',
			min_confidence REAL NOT NULL DEFAULT 0,
			enabled INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_outcomes_created_at ON outcomes(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_label ON outcomes(label)`,
		`CREATE INDEX IF NOT EXISTS idx_bindings_label ON bindings(label)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
