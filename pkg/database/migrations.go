package database

import (
	"database/sql"
	"fmt"
)

// Migration is one schema change, applied atomically and tracked in
// schema_migrations.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// migrations are applied in slice order. Append only; never edit an applied
// migration.
var migrations = []Migration{
	{
		Version:     "001",
		Description: "users, classes and enrollments",
		SQL: `
			CREATE TABLE IF NOT EXISTS users (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				full_name TEXT NOT NULL,
				email TEXT NOT NULL UNIQUE,
				role TEXT NOT NULL CHECK (role IN ('student', 'teacher', 'admin'))
			);

			CREATE TABLE IF NOT EXISTS classes (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL,
				teacher_id INTEGER NOT NULL REFERENCES users(id)
			);

			CREATE TABLE IF NOT EXISTS enrollments (
				class_id INTEGER NOT NULL REFERENCES classes(id),
				user_id INTEGER NOT NULL REFERENCES users(id),
				PRIMARY KEY (class_id, user_id)
			);
		`,
	},
	{
		Version:     "002",
		Description: "Q&A board: questions and answers",
		SQL: `
			CREATE TABLE IF NOT EXISTS questions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				content TEXT NOT NULL,
				class_id INTEGER NOT NULL REFERENCES classes(id),
				student_id INTEGER NOT NULL REFERENCES users(id),
				timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_questions_class ON questions(class_id, timestamp);

			CREATE TABLE IF NOT EXISTS answers (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				content TEXT NOT NULL,
				question_id INTEGER NOT NULL REFERENCES questions(id),
				teacher_id INTEGER NOT NULL REFERENCES users(id),
				timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_answers_question ON answers(question_id, timestamp);
		`,
	},
	{
		Version:     "003",
		Description: "direct messages",
		SQL: `
			CREATE TABLE IF NOT EXISTS messages (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				sender_id INTEGER NOT NULL REFERENCES users(id),
				receiver_id INTEGER NOT NULL REFERENCES users(id),
				content TEXT NOT NULL,
				timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				is_read BOOLEAN NOT NULL DEFAULT 0
			);
			CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id, timestamp);
			CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages(receiver_id, timestamp);
		`,
	},
}

// MigrationManager applies pending schema migrations.
type MigrationManager struct {
	db *sql.DB
}

// NewMigrationManager creates a migration manager.
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// ApplyMigrations brings the schema up to date. Each migration runs in its
// own transaction; a failure leaves earlier migrations applied.
func (m *MigrationManager) ApplyMigrations() error {
	if err := m.createMigrationTable(); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := m.appliedVersions()
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	for _, mig := range migrations {
		if applied[mig.Version] {
			continue
		}
		if err := m.apply(mig); err != nil {
			return fmt.Errorf("migration %s (%s): %w", mig.Version, mig.Description, err)
		}
	}
	return nil
}

func (m *MigrationManager) createMigrationTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (m *MigrationManager) appliedVersions() (map[string]bool, error) {
	rows, err := m.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (m *MigrationManager) apply(mig Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(mig.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT INTO schema_migrations (version, description) VALUES (?, ?)`,
		mig.Version, mig.Description,
	); err != nil {
		return err
	}
	return tx.Commit()
}
