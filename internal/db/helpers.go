package db

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// ParseUUID converts a textual id into a pgtype.UUID. field names the value in
// the returned error.
func ParseUUID(field, s string) (pgtype.UUID, error) {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return pgtype.UUID{}, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return pgtype.UUID{Bytes: u, Valid: true}, nil
}

// UUIDString formats u, or returns "" when u is NULL.
func UUIDString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}
