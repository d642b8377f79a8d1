// Package anonymize rewrites personal fields in place with random data of the
// same shape, keeping NULLs NULL.
package anonymize

import (
	"database/sql"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/vietddude/sweeper/internal/core/domain"
)

// Kind selects how a column value is rewritten.
type Kind string

const (
	KindText  Kind = "text"  // letters replaced, case and everything else kept
	KindToken Kind = "token" // replaced by a fresh random token
	KindCount Kind = "count" // zero kept, anything else becomes 1..10
)

const (
	alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	TokenLength  = 64
)

// ScrambleString replaces every ASCII letter with a random letter of the same case.
func ScrambleString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
			b.WriteByte(byte('a' + rand.IntN(26)))
		case c >= 'A' && c <= 'Z':
			b.WriteByte(byte('A' + rand.IntN(26)))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Token returns a random alphanumeric string of length n.
func Token(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphanumeric[rand.IntN(len(alphanumeric))]
	}
	return string(b)
}

// Value rewrites one column value according to kind.
func Value(kind Kind, v sql.NullString) sql.NullString {
	switch kind {
	case KindToken:
		return sql.NullString{String: Token(TokenLength), Valid: true}
	case KindCount:
		if !v.Valid || strings.TrimSpace(v.String) == "0" {
			return v
		}
		return sql.NullString{String: strconv.Itoa(1 + rand.IntN(10)), Valid: true}
	default:
		if !v.Valid {
			return v
		}
		return sql.NullString{String: ScrambleString(v.String), Valid: true}
	}
}

// Transform rewrites every value of row using the kinds of columns.
func Transform(row domain.Row, columns []ColumnSpec) domain.Row {
	out := domain.Row{Key: row.Key, Values: make([]sql.NullString, len(row.Values))}
	for i, v := range row.Values {
		kind := KindText
		if i < len(columns) && columns[i].Kind != "" {
			kind = columns[i].Kind
		}
		out.Values[i] = Value(kind, v)
	}
	return out
}
