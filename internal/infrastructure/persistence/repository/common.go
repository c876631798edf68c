package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/garyjia/excise-workflow/internal/domain/workflow"
	"github.com/garyjia/excise-workflow/internal/infrastructure/persistence/sqldb"
)

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func encodeJSON(v any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode json: %w", err)
	}
	return string(b), nil
}

// decodeObject decodes a JSON object column. Numbers are kept as float64,
// the same shape a JSON request body produces.
func decodeObject(raw string) (map[string]any, error) {
	out := map[string]any{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}
	return out, nil
}

func decodeFlags(raw string) (map[string]bool, error) {
	out := map[string]bool{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("failed to decode flags: %w", err)
	}
	return out, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

// expectAffected turns a zero-row update or delete into a NotFoundError
func expectAffected(res sql.Result, kind string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return workflow.NotFound(kind, id)
	}
	return nil
}

// constraintError maps constraint failures onto validation errors
func constraintError(err error, field, message string) error {
	if sqldb.IsUniqueViolation(err) || sqldb.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: %v", workflow.Invalid(field, message), err)
	}
	return sqldb.Classify(err)
}
