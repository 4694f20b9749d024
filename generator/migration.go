package generator

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	upMarker   = "-- Up Migration"
	downMarker = "-- Down Migration (Rollback)"
)

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// MigrationFileName builds "<timestamp>_<slug>.sql"; the slug falls back to
// "migration" when name has nothing usable in it.
func MigrationFileName(now time.Time, name string) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		slug = "migration"
	}
	return fmt.Sprintf("%s_%s.sql", now.UTC().Format("20060102150405"), slug)
}

// WriteMigrationFile writes up and down statements into a new file under
// dir, creating dir when missing, and returns the file path.
func WriteMigrationFile(dir, name string, up, down []string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating migrations folder: %v", err)
	}

	now := time.Now()
	filename := filepath.Join(dir, MigrationFileName(now, name))

	var b strings.Builder
	b.WriteString("-- Migration: " + now.UTC().Format("20060102150405") + "\n")
	b.WriteString("-- Description: " + descriptionOf(name) + "\n\n")

	b.WriteString(upMarker + "\n")
	b.WriteString("-- ============\n")
	for _, stmt := range up {
		b.WriteString(stmt + "\n")
	}

	b.WriteString("\n" + downMarker + "\n")
	b.WriteString("-- =======================\n")
	for _, stmt := range down {
		b.WriteString(stmt + "\n")
	}

	if err := os.WriteFile(filename, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("writing migration file: %v", err)
	}
	return filename, nil
}

func descriptionOf(name string) string {
	if strings.TrimSpace(name) == "" {
		return "Auto-generated migration"
	}
	return strings.TrimSpace(name)
}

// ParseMigration splits a migration file into its up and down statements.
func ParseMigration(content string) (up, down []string, err error) {
	parts := strings.SplitN(content, downMarker, 2)
	if len(parts) < 2 {
		return nil, nil, fmt.Errorf("migration does not contain rollback section")
	}
	upParts := strings.SplitN(parts[0], upMarker, 2)
	if len(upParts) < 2 {
		return nil, nil, fmt.Errorf("migration does not contain up migration section")
	}
	return SplitStatements(upParts[1]), SplitStatements(parts[1]), nil
}

// SplitStatements splits SQL text on top-level semicolons. Quoted strings,
// quoted identifiers and dollar-quoted bodies are kept intact; comment lines
// between statements are dropped.
func SplitStatements(sql string) []string {
	var (
		out     []string
		current strings.Builder
		quote   byte   // ' or " while inside a quoted token
		dollar  string // active dollar-quote tag
	)
	flush := func() {
		stmt := strings.TrimSpace(current.String())
		current.Reset()
		if stmt != "" {
			out = append(out, stmt+";")
		}
	}

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case dollar != "":
			if strings.HasPrefix(sql[i:], dollar) {
				current.WriteString(dollar)
				i += len(dollar) - 1
				dollar = ""
				continue
			}
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '$':
			if tag := dollarTagAt(sql[i:]); tag != "" {
				dollar = tag
				current.WriteString(tag)
				i += len(tag) - 1
				continue
			}
		case c == '-' && strings.HasPrefix(sql[i:], "--"):
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				end = len(sql) - i
			}
			i += end
			current.WriteByte('\n')
			continue
		case c == ';':
			flush()
			continue
		}
		current.WriteByte(c)
	}
	flush()
	return out
}

var dollarOpen = regexp.MustCompile(`^\$[A-Za-z_0-9]*\$`)

func dollarTagAt(s string) string {
	tag := dollarOpen.FindString(s)
	if len(tag) > 2 && tag[1] >= '0' && tag[1] <= '9' {
		// positional parameter such as $1
		return ""
	}
	return tag
}
