package validator

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/ridoystarlord/schemasync/definition"
	"github.com/ridoystarlord/schemasync/schema"
)

// ValidationError represents a validation finding with details
type ValidationError struct {
	Type     string `json:"type"`
	Table    string `json:"table,omitempty"`
	Column   string `json:"column,omitempty"`
	Index    string `json:"index,omitempty"`
	Message  string `json:"message"`
	Severity string `json:"severity"` // "error", "warning", "info"
}

// ValidationResult contains all validation results
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationError `json:"errors"`
	Warnings []ValidationError `json:"warnings"`
	Info     []ValidationError `json:"info"`
}

func (r *ValidationResult) errorf(kind, table, column, format string, args ...any) {
	r.Errors = append(r.Errors, ValidationError{Type: kind, Table: table, Column: column, Message: fmt.Sprintf(format, args...), Severity: "error"})
}

func (r *ValidationResult) warnf(kind, table, column, format string, args ...any) {
	r.Warnings = append(r.Warnings, ValidationError{Type: kind, Table: table, Column: column, Message: fmt.Sprintf(format, args...), Severity: "warning"})
}

// WarningMessages flattens warnings into "table.column: message" lines.
func (r *ValidationResult) WarningMessages() []string {
	out := make([]string, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		out = append(out, w.String())
	}
	return out
}

func (e ValidationError) String() string {
	if loc := schema.Qualify(e.Table, e.Column); loc != "" {
		return loc + ": " + e.Message
	}
	return e.Message
}

// SchemaValidator lints a declaration tree for naming, typing and
// portability problems. It never connects to a database; pass the live
// snapshot to WithExisting to get "already exists" information entries.
type SchemaValidator struct {
	maxIdentifierLength int
	existing            *schema.DatabaseSchema
}

func NewSchemaValidator(maxIdentifierLength int) *SchemaValidator {
	if maxIdentifierLength <= 0 {
		maxIdentifierLength = 63
	}
	return &SchemaValidator{maxIdentifierLength: maxIdentifierLength}
}

// WithExisting compares declared tables against a live snapshot.
func (v *SchemaValidator) WithExisting(current *schema.DatabaseSchema) *SchemaValidator {
	v.existing = current
	return v
}

// ValidateSchema runs every check over tree.
func (v *SchemaValidator) ValidateSchema(tree definition.Tree) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
		Info:     []ValidationError{},
	}

	enums := map[string]bool{}
	for _, e := range tree.Enums {
		enums[e.Name] = true
		if len(e.Values) == 0 {
			result.errorf("enum_values", "", "", "enum '%s' has no values", e.Name)
		}
	}

	for _, table := range tree.Tables {
		v.validateTable(table, enums, result)
		if v.existing != nil && v.existing.Table(table.Name) != nil {
			result.Info = append(result.Info, ValidationError{
				Type:     "table_exists",
				Table:    table.Name,
				Message:  fmt.Sprintf("Table '%s' already exists in database", table.Name),
				Severity: "info",
			})
		}
	}
	v.validateCrossTableConstraints(tree, result)

	result.Valid = len(result.Errors) == 0
	return result
}

func (v *SchemaValidator) validateTable(table definition.TableDef, enums map[string]bool, result *ValidationResult) {
	if msg := v.identifierProblem("table", table.Name); msg != "" {
		result.errorf("table_name", table.Name, "", "%s", msg)
	}
	if isReserved(table.Name) {
		result.warnf("reserved_keyword", table.Name, "", "table name '%s' is a reserved keyword and will always need quoting", table.Name)
	}

	if len(table.Columns) == 0 {
		result.errorf("no_columns", table.Name, "", "Table '%s' must have at least one column", table.Name)
		return
	}

	columnNames := map[string]bool{}
	hasPrimaryKey := table.PrimaryKey != nil
	for _, column := range table.Columns {
		if columnNames[column.Name] {
			result.errorf("duplicate_column", table.Name, column.Name, "Duplicate column name '%s' in table '%s'", column.Name, table.Name)
			continue
		}
		columnNames[column.Name] = true

		if msg := v.identifierProblem("column", column.Name); msg != "" {
			result.errorf("column_name", table.Name, column.Name, "%s", msg)
		}
		if isReserved(column.Name) {
			result.warnf("reserved_keyword", table.Name, column.Name, "column name '%s' is a reserved keyword and will always need quoting", column.Name)
		}

		typeName := column.Type
		if column.Enum != "" {
			typeName = column.Enum
		}
		if !enums[typeName] && !validDataType(typeName) {
			result.warnf("data_type", table.Name, column.Name, "unrecognized data type '%s' (assuming it is provided by an extension)", column.Type)
		}

		if column.Primary {
			hasPrimaryKey = true
		}

		if column.Default != nil {
			if msg := defaultValueProblem(column.Type, *column.Default); msg != "" {
				result.warnf("default_value", table.Name, column.Name, "%s", msg)
			}
		}

		if column.ForeignKey != nil {
			for _, action := range []string{column.ForeignKey.OnDelete, column.ForeignKey.OnUpdate} {
				if _, ok := schema.ParseAction(action); !ok {
					result.errorf("foreign_key", table.Name, column.Name, "invalid referential action '%s'", action)
				}
			}
		}
	}

	if !hasPrimaryKey {
		result.warnf("no_primary_key", table.Name, "", "Table '%s' has no primary key defined", table.Name)
	}

	indexNames := map[string]bool{}
	for _, index := range table.Indexes {
		if index.Name != "" {
			if indexNames[index.Name] {
				result.Errors = append(result.Errors, ValidationError{
					Type:     "duplicate_index",
					Table:    table.Name,
					Index:    index.Name,
					Message:  fmt.Sprintf("Duplicate index name '%s' in table '%s'", index.Name, table.Name),
					Severity: "error",
				})
				continue
			}
			indexNames[index.Name] = true
			if msg := v.identifierProblem("index", index.Name); msg != "" {
				result.Errors = append(result.Errors, ValidationError{Type: "index_name", Table: table.Name, Index: index.Name, Message: msg, Severity: "error"})
			}
		}
		for _, columnName := range index.Columns {
			if schema.IsExpressionMember(columnName) {
				if !slices.ContainsFunc(schema.ExpressionIdentifiers(columnName), func(id string) bool { return columnNames[id] }) {
					result.Errors = append(result.Errors, ValidationError{
						Type:     "index_expression_without_column",
						Table:    table.Name,
						Index:    index.Name,
						Message:  fmt.Sprintf("Index '%s' expression '%s' references no column of table '%s'", index.Name, columnName, table.Name),
						Severity: "error",
					})
				}
				continue
			}
			if !columnNames[columnName] {
				result.Errors = append(result.Errors, ValidationError{
					Type:     "index_column_not_found",
					Table:    table.Name,
					Index:    index.Name,
					Column:   columnName,
					Message:  fmt.Sprintf("Index '%s' references non-existent column '%s' in table '%s'", index.Name, columnName, table.Name),
					Severity: "error",
				})
			}
		}
	}

	for _, fk := range table.ForeignKeys {
		for _, action := range []string{fk.OnDelete, fk.OnUpdate} {
			if _, ok := schema.ParseAction(action); !ok {
				result.errorf("foreign_key", table.Name, "", "invalid referential action '%s'", action)
			}
		}
	}
}

var identifierChars = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// identifierProblem returns a message when name breaks PostgreSQL identifier rules.
func (v *SchemaValidator) identifierProblem(what, name string) string {
	if name == "" {
		return what + " name cannot be empty"
	}
	if len(name) > v.maxIdentifierLength {
		return fmt.Sprintf("%s name '%s' is too long (max %d characters)", what, name, v.maxIdentifierLength)
	}
	if !identifierChars.MatchString(name) {
		return fmt.Sprintf("%s name '%s' contains invalid characters", what, name)
	}
	return ""
}

var reservedKeywords = []string{
	"all", "analyse", "analyze", "and", "any", "array", "as", "asc", "both", "case", "cast", "check",
	"column", "constraint", "create", "default", "desc", "distinct", "do", "else", "end", "false",
	"for", "foreign", "from", "grant", "group", "having", "in", "index", "limit", "not", "null",
	"offset", "on", "only", "or", "order", "primary", "references", "schema", "select", "table",
	"then", "to", "true", "union", "unique", "user", "using", "view", "when", "where", "with",
}

func isReserved(name string) bool {
	return slices.Contains(reservedKeywords, strings.ToLower(name))
}

var validTypes = map[string]bool{
	"smallint": true, "integer": true, "bigint": true,
	"numeric": true, "real": true, "double precision": true,
	"serial": true, "bigserial": true, "smallserial": true, "money": true,
	"varchar": true, "char": true, "text": true, "citext": true, "bytea": true,
	"timestamp": true, "timestamptz": true, "date": true, "time": true, "timetz": true, "interval": true,
	"boolean": true, "json": true, "jsonb": true, "uuid": true,
	"point": true, "line": true, "lseg": true, "box": true, "path": true, "polygon": true, "circle": true,
	"cidr": true, "inet": true, "macaddr": true, "macaddr8": true,
	"bit": true, "varbit": true,
	"tsvector": true, "tsquery": true, "xml": true,
}

var modifier = regexp.MustCompile(`\(.*\)`)

func validDataType(dataType string) bool {
	canon, _ := schema.CanonicalType(dataType)
	return validTypes[modifier.ReplaceAllString(canon, "")]
}

// markers of default syntax borrowed from other SQL dialects
var foreignDefaultSyntax = []string{"`", "auto_increment", "getdate()", "sysdate", "on update", "datetime('now')", "newid()"}

// defaultValueProblem checks a default against its column type and for
// syntax that will not work on PostgreSQL.
func defaultValueProblem(dataType, defaultValue string) string {
	lower := strings.ToLower(defaultValue)
	for _, marker := range foreignDefaultSyntax {
		if strings.Contains(lower, marker) {
			return fmt.Sprintf("default value syntax '%s' is not portable to PostgreSQL", defaultValue)
		}
	}

	canon, _ := schema.CanonicalType(dataType)
	canon = modifier.ReplaceAllString(canon, "")
	isCall := strings.Contains(defaultValue, "(")

	switch {
	case canon == "smallint" || canon == "integer" || canon == "bigint":
		if !isCall && !strings.Contains(defaultValue, "'") && strings.Contains(defaultValue, ".") {
			return fmt.Sprintf("integer type cannot have decimal default value '%s'", defaultValue)
		}
	case schema.IsSerial(canon):
		return fmt.Sprintf("serial column already has a sequence default; '%s' will be ignored", defaultValue)
	case canon == "varchar" || canon == "char" || canon == "text":
		if !isCall && !strings.HasPrefix(defaultValue, "'") && !strings.EqualFold(defaultValue, "null") {
			return fmt.Sprintf("string type should have quoted default value '%s'", defaultValue)
		}
	case canon == "boolean":
		switch lower {
		case "true", "false", "null":
		default:
			return fmt.Sprintf("boolean type should have true/false default value, got '%s'", defaultValue)
		}
	}
	return ""
}

// validateCrossTableConstraints checks foreign key targets across tables.
func (v *SchemaValidator) validateCrossTableConstraints(tree definition.Tree, result *ValidationResult) {
	columns := map[string]map[string]bool{}
	for _, t := range tree.Tables {
		columns[t.Name] = map[string]bool{}
		for _, c := range t.Columns {
			columns[t.Name][c.Name] = true
		}
	}

	check := func(table, column, refTable string, refColumns []string) {
		cols, ok := columns[refTable]
		if !ok {
			result.errorf("foreign_key_table_not_found", table, column, "Foreign key references non-existent table '%s'", refTable)
			return
		}
		for _, rc := range refColumns {
			if rc != "" && !cols[rc] {
				result.errorf("foreign_key_column_not_found", table, column, "Foreign key references non-existent column '%s' in table '%s'", rc, refTable)
			}
		}
	}

	for _, t := range tree.Tables {
		for _, c := range t.Columns {
			if c.ForeignKey != nil {
				check(t.Name, c.Name, c.ForeignKey.ReferencesTable, []string{c.ForeignKey.ReferencesColumn})
			}
		}
		for _, fk := range t.ForeignKeys {
			check(t.Name, strings.Join(fk.Columns, ","), fk.ReferencesTable, fk.ReferencesColumns)
		}
	}
}
