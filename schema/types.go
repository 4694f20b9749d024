package schema

import (
	"regexp"
	"strings"
)

var typeSynonyms = map[string]string{
	"int":                         "integer",
	"int4":                        "integer",
	"integer":                     "integer",
	"int2":                        "smallint",
	"smallint":                    "smallint",
	"int8":                        "bigint",
	"bigint":                      "bigint",
	"serial4":                     "serial",
	"serial":                      "serial",
	"serial8":                     "bigserial",
	"bigserial":                   "bigserial",
	"serial2":                     "smallserial",
	"smallserial":                 "smallserial",
	"bool":                        "boolean",
	"boolean":                     "boolean",
	"float8":                      "double precision",
	"double":                      "double precision",
	"double precision":            "double precision",
	"float4":                      "real",
	"real":                        "real",
	"float":                       "double precision",
	"decimal":                     "numeric",
	"numeric":                     "numeric",
	"character varying":           "varchar",
	"varchar":                     "varchar",
	"character":                   "char",
	"char":                        "char",
	"bpchar":                      "char",
	"timestamp without time zone": "timestamp",
	"timestamp":                   "timestamp",
	"timestamp with time zone":    "timestamptz",
	"timestamptz":                 "timestamptz",
	"time without time zone":      "time",
	"time":                        "time",
	"time with time zone":         "timetz",
	"timetz":                      "timetz",
	"bit varying":                 "varbit",
	"varbit":                      "varbit",
}

var (
	typeModifier = regexp.MustCompile(`^(.*?)\s*\(\s*([^)]*?)\s*\)(.*)$`)
	spaces       = regexp.MustCompile(`\s+`)
)

// CanonicalType folds a type name to the spelling used for comparison and
// splits off a trailing array suffix. "INT4[]" becomes ("integer", true);
// "character varying(255)" becomes ("varchar(255)", false).
func CanonicalType(raw string) (string, bool) {
	t := strings.ToLower(strings.TrimSpace(spaces.ReplaceAllString(raw, " ")))

	isArray := false
	for strings.HasSuffix(t, "[]") {
		isArray = true
		t = strings.TrimSpace(strings.TrimSuffix(t, "[]"))
	}
	if strings.HasPrefix(t, "_") {
		// pg_type array names, e.g. _int4
		isArray = true
		t = strings.TrimPrefix(t, "_")
	}

	// Split "timestamp(3) with time zone" into base "timestamp with time zone" and modifier "3".
	var modifier string
	if m := typeModifier.FindStringSubmatch(t); m != nil {
		modifier = strings.ReplaceAll(m[2], " ", "")
		t = strings.TrimSpace(m[1] + m[3])
	}

	if canon, ok := typeSynonyms[t]; ok {
		t = canon
	}
	if modifier != "" {
		t += "(" + modifier + ")"
	}
	return t, isArray
}

// IsSerial reports whether t is one of the serial pseudo-types.
func IsSerial(t string) bool {
	switch t {
	case "serial", "bigserial", "smallserial":
		return true
	}
	return false
}

// SerialFor maps an integer storage type to its serial pseudo-type.
func SerialFor(t string) string {
	switch t {
	case "bigint":
		return "bigserial"
	case "smallint":
		return "smallserial"
	}
	return "serial"
}

// StorageType maps serial pseudo-types to the integer type backing them and
// returns any other type unchanged.
func StorageType(t string) string {
	switch t {
	case "serial":
		return "integer"
	case "bigserial":
		return "bigint"
	case "smallserial":
		return "smallint"
	}
	return t
}
