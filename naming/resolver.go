// Package naming derives the names of constraints and indexes that were
// declared without one.
//
// A default name is PREFIX_table_col1_col2. When it exceeds the identifier
// limit it is cut to limit-9 bytes and suffixed with "_" and the first eight
// hex digits of the SHA-1 of the full name, so the same logical object always
// gets the same physical name.
package naming

import (
	"crypto/sha1"
	"encoding/hex"
	"slices"
	"strings"

	"github.com/ridoystarlord/schemasync/errs"
	"github.com/ridoystarlord/schemasync/schema"
)

// DefaultMaxIdentifierLength is PostgreSQL's NAMEDATALEN-1.
const DefaultMaxIdentifierLength = 63

// MinIdentifierLength is the smallest limit that leaves a readable prefix
// in front of the hash suffix.
const MinIdentifierLength = 16

const hashLength = 8

// CheckMaxIdentifierLength rejects identifier limits below MinIdentifierLength.
func CheckMaxIdentifierLength(n int) error {
	if n < MinIdentifierLength {
		return errs.Newf(errs.ErrKindInvalidInput, "max identifier length must be at least %d, got %d", MinIdentifierLength, n)
	}
	return nil
}

var prefixes = map[schema.ObjectKind]string{
	schema.KindPrimaryKey: "PK",
	schema.KindForeignKey: "FK",
	schema.KindUnique:     "UQ",
	schema.KindCheck:      "CHK",
	schema.KindIndex:      "IDX",
}

type overrideKey struct {
	table   string
	kind    schema.ObjectKind
	columns string
}

func keyOf(table string, kind schema.ObjectKind, columns []string) overrideKey {
	cols := slices.Clone(columns)
	slices.Sort(cols)
	cols = slices.Compact(cols)
	return overrideKey{table: table, kind: kind, columns: strings.Join(cols, ",")}
}

// Resolver names constraints and indexes. It is immutable once built.
type Resolver struct {
	maxLen    int
	overrides map[overrideKey]string
}

// NewResolver indexes overrides by (table, kind, column set). When two
// overrides share a key the lexicographically smallest name wins, so the
// order overrides are supplied in never changes the outcome.
//
// A zero limit means DefaultMaxIdentifierLength. Any other limit is used as
// given; callers validate it with CheckMaxIdentifierLength.
func NewResolver(overrides []schema.Override, maxIdentifierLength int) *Resolver {
	if maxIdentifierLength == 0 {
		maxIdentifierLength = DefaultMaxIdentifierLength
	}
	r := &Resolver{maxLen: maxIdentifierLength, overrides: map[overrideKey]string{}}
	for _, o := range overrides {
		k := keyOf(o.TableName, o.Kind, o.Columns)
		if cur, ok := r.overrides[k]; !ok || o.Name < cur {
			r.overrides[k] = o.Name
		}
	}
	return r
}

// Resolve returns the override bound to (table, kind, columns) if any, else the default name.
func (r *Resolver) Resolve(table string, kind schema.ObjectKind, columns []string) string {
	if name, ok := r.Override(table, kind, columns); ok {
		return name
	}
	return r.Default(table, kind, columns)
}

// Override looks up an explicit name without falling back.
func (r *Resolver) Override(table string, kind schema.ObjectKind, columns []string) (string, bool) {
	name, ok := r.overrides[keyOf(table, kind, columns)]
	return name, ok
}

// Default builds the conventional name and fits it to the identifier limit.
func (r *Resolver) Default(table string, kind schema.ObjectKind, columns []string) string {
	parts := append([]string{prefixes[kind], table}, columns...)
	return r.Fit(strings.Join(parts, "_"))
}

// Fit shortens name to the identifier limit using truncate-then-hash.
func (r *Resolver) Fit(name string) string {
	if len(name) <= r.maxLen {
		return name
	}
	sum := sha1.Sum([]byte(name))
	return truncateBytes(name, max(r.maxLen-hashLength-1, 0)) + "_" + hex.EncodeToString(sum[:])[:hashLength]
}

// MaxLength is the identifier limit the resolver fits names to.
func (r *Resolver) MaxLength() int {
	return r.maxLen
}

// truncateBytes cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// IndexNameParts turns index members into default-name parts. A column is
// used as is and an expression contributes its words, so lower(email) becomes
// lower_email.
func IndexNameParts(members []string) []string {
	parts := make([]string, len(members))
	for i, m := range members {
		if schema.IsExpressionMember(m) {
			m = strings.Join(schema.ExpressionWords(m), "_")
		}
		parts[i] = m
	}
	return parts
}

// CheckColumns lists the columns of table referenced by a CHECK expression,
// in order of first appearance. These are the participating columns used
// both for naming and for dependency ordering.
func CheckColumns(expression string, table *schema.Table) []string {
	var cols []string
	for _, id := range schema.ExpressionIdentifiers(expression) {
		if table.Column(id) != nil {
			cols = append(cols, id)
		}
	}
	return cols
}
