package repository

import (
	"database/sql"
	"strconv"
	"strings"

	"github.com/iliyamo/entrance-ticketing/internal/model"
)

// dateExpr renders a DATE column as 'YYYY-MM-DD' so it scans into a string
// regardless of parseTime.
func dateExpr(col string) string { return "DATE_FORMAT(" + col + ", '%Y-%m-%d')" }

// slotArg stores a nil time slot as the empty string.
func slotArg(ts *string) string {
	if ts == nil {
		return ""
	}
	return *ts
}

func slotPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func keyArgs(k model.SlotKey) []any {
	return []any{k.ResourceID, k.Date, slotArg(k.TimeSlot)}
}

func nullIntPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

// placeholders returns "(?, ?), (?, ?)" style groups for bulk inserts.
func placeholders(rows, cols int) string {
	group := "(" + strings.TrimSuffix(strings.Repeat("?, ", cols), ", ") + ")"
	parts := make([]string, rows)
	for i := range parts {
		parts[i] = group
	}
	return strings.Join(parts, ", ")
}

func itoa(n int) string { return strconv.Itoa(n) }
