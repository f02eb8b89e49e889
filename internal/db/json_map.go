package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
)

// JSONMap is a free-form JSONB object column (swipe and research item metadata).
// A NULL column scans to an empty map; a nil map is written as "{}".
type JSONMap map[string]any

// Scan implements sql.Scanner for reading from the database.
func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return m.unmarshal(v)
	case string:
		return m.unmarshal([]byte(v))
	default:
		return fmt.Errorf("db.JSONMap.Scan: expected []byte or string, got %T", value)
	}
}

func (m *JSONMap) unmarshal(b []byte) error {
	out := map[string]any{}
	if len(b) > 0 && string(b) != "null" {
		if err := json.Unmarshal(b, &out); err != nil {
			return err
		}
	}
	*m = out
	return nil
}

// Value implements driver.Valuer for writing to the database.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(m))
}

// ScanText implements the pgtype.TextScanner interface for pgx v5.
func (m *JSONMap) ScanText(v pgtype.Text) error {
	if !v.Valid {
		*m = JSONMap{}
		return nil
	}
	return m.unmarshal([]byte(v.String))
}

// TextValue implements the pgtype.TextValuer interface for pgx v5.
func (m JSONMap) TextValue() (pgtype.Text, error) {
	if m == nil {
		return pgtype.Text{String: "{}", Valid: true}, nil
	}
	b, err := json.Marshal(map[string]any(m))
	if err != nil {
		return pgtype.Text{}, err
	}
	return pgtype.Text{String: string(b), Valid: true}, nil
}

// GetString returns the value at key when it is a string.
func (m JSONMap) GetString(key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
