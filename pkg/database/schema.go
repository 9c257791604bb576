package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator verifies a migrated database before the server starts
// serving, so schema drift fails fast instead of at query time.
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a schema validator.
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies that all required tables exist.
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"users":             "account records",
		"classes":           "class records",
		"enrollments":       "class membership",
		"questions":         "Q&A board questions",
		"answers":           "Q&A board answers",
		"messages":          "direct messages",
		"schema_migrations": "migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.tableExists(table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}
	return nil
}

func (v *SchemaValidator) tableExists(name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
