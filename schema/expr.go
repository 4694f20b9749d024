package schema

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/sqldef/sqldef/v3/parser"
)

type tokenKind int

const (
	tokWord tokenKind = iota
	tokQuoted
	tokString
	tokNumber
	tokPunct
)

type token struct {
	kind tokenKind
	text string
}

// multi-character operators recognised by the tokenizer, longest first
var operators = []string{"->>", "#>>", "::", "<=", ">=", "<>", "!=", "||", "->", "#>", "@>", "<@", "~~", "!~"}

func tokenize(expr string) []token {
	var toks []token
	r := []rune(expr)
	for i := 0; i < len(r); {
		c := r[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '\'':
			j := i + 1
			for j < len(r) {
				if r[j] == '\'' {
					if j+1 < len(r) && r[j+1] == '\'' {
						j += 2
						continue
					}
					break
				}
				j++
			}
			end := min(j+1, len(r))
			toks = append(toks, token{tokString, string(r[i:end])})
			i = end
		case c == '"':
			j := i + 1
			for j < len(r) && r[j] != '"' {
				j++
			}
			toks = append(toks, token{tokQuoted, string(r[i+1 : j])})
			i = min(j+1, len(r))
		case unicode.IsDigit(c):
			j := i
			for j < len(r) && (unicode.IsDigit(r[j]) || r[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNumber, string(r[i:j])})
			i = j
		case unicode.IsLetter(c) || c == '_':
			j := i
			for j < len(r) && (unicode.IsLetter(r[j]) || unicode.IsDigit(r[j]) || r[j] == '_' || r[j] == '$') {
				j++
			}
			toks = append(toks, token{tokWord, strings.ToLower(string(r[i:j]))})
			i = j
		default:
			matched := false
			for _, op := range operators {
				if strings.HasPrefix(string(r[i:min(i+len(op), len(r))]), op) {
					toks = append(toks, token{tokPunct, op})
					i += len(op)
					matched = true
					break
				}
			}
			if !matched {
				toks = append(toks, token{tokPunct, string(c)})
				i++
			}
		}
	}
	return toks
}

// words that continue a multi-word type name after a cast
var typeContinuation = map[string]bool{
	"varying": true, "precision": true, "with": true, "without": true, "time": true, "zone": true,
}

// stripCasts removes "::type" suffixes, including modifiers and array brackets.
func stripCasts(toks []token) []token {
	out := make([]token, 0, len(toks))
	for i := 0; i < len(toks); i++ {
		if toks[i].kind != tokPunct || toks[i].text != "::" {
			out = append(out, toks[i])
			continue
		}
		i++
		if i < len(toks) && (toks[i].kind == tokWord || toks[i].kind == tokQuoted) {
			for i+1 < len(toks) && toks[i+1].kind == tokWord && typeContinuation[toks[i+1].text] {
				i++
			}
			if i+1 < len(toks) && toks[i+1].text == "(" {
				for i+1 < len(toks) && toks[i+1].text != ")" {
					i++
				}
				i++
			}
			for i+2 < len(toks) && toks[i+1].text == "[" && toks[i+2].text == "]" {
				i += 2
			}
		} else {
			i--
		}
	}
	return out
}

// keywords after which a parenthesis groups instead of calling
var groupingKeywords = map[string]bool{
	"and": true, "or": true, "not": true, "is": true, "when": true, "then": true,
	"else": true, "case": true, "between": true, "like": true, "ilike": true, "check": true,
}

func isCallParen(toks []token, i int) bool {
	if i == 0 {
		return false
	}
	prev := toks[i-1]
	return prev.kind == tokWord && !groupingKeywords[prev.text] || prev.kind == tokQuoted
}

// closing returns the index of the parenthesis closing toks[open], or -1.
func closing(toks []token, open int) int {
	depth := 0
	for i := open; i < len(toks); i++ {
		if toks[i].kind != tokPunct {
			continue
		}
		switch toks[i].text {
		case "(":
			depth++
		case ")":
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// stripGrouping removes parentheses around a single operand and those
// wrapping the whole expression. Parentheses that decide precedence stay.
func stripGrouping(toks []token) []token {
	for changed := true; changed; {
		changed = false
		out := make([]token, 0, len(toks))
		for i := 0; i < len(toks); i++ {
			if toks[i].kind == tokPunct && toks[i].text == "(" && !isCallParen(toks, i) &&
				i+2 < len(toks) && toks[i+1].kind != tokPunct && toks[i+2].text == ")" {
				out = append(out, toks[i+1])
				i += 2
				changed = true
				continue
			}
			out = append(out, toks[i])
		}
		toks = out
	}
	for len(toks) >= 2 && toks[0].text == "(" && closing(toks, 0) == len(toks)-1 {
		toks = toks[1 : len(toks)-1]
	}
	return toks
}

// NormalizeExpression reduces an SQL expression to a comparison key that is
// insensitive to case outside string literals, whitespace, identifier quoting,
// type casts and redundant parentheses.
func NormalizeExpression(expr string) string {
	toks := stripGrouping(stripCasts(tokenize(expr)))
	parts := make([]string, len(toks))
	for i, t := range toks {
		parts[i] = t.text
	}
	return strings.Join(parts, " ")
}

// ExpressionsEqual reports whether two expressions mean the same once catalog
// formatting is ignored. Both sides are parsed and their syntax trees compared,
// so (a OR b) AND c and a OR (b AND c) differ while ((a > 0)) and a > 0 match.
// Expressions the parser rejects are compared by NormalizeExpression.
func ExpressionsEqual(a, b string) bool {
	if a == b {
		return true
	}
	ea, errA := parser.ParseExpression(foldCase(a), parser.ParserModePostgres)
	eb, errB := parser.ParseExpression(foldCase(b), parser.ParserModePostgres)
	if errA == nil && errB == nil {
		return parser.CompareExpr(canonical(ea), canonical(eb))
	}
	return NormalizeExpression(a) == NormalizeExpression(b)
}

var lowerIdentifier = regexp.MustCompile(`^[a-z_][a-z0-9_$]*$`)

// foldCase rewrites expr the way PostgreSQL resolves it: unquoted words are
// lower-cased and quotes around lower-case identifiers are dropped.
func foldCase(expr string) string {
	toks := tokenize(expr)
	parts := make([]string, len(toks))
	for i, t := range toks {
		parts[i] = t.text
		if t.kind == tokQuoted && (!lowerIdentifier.MatchString(t.text) || exprKeywords[t.text]) {
			parts[i] = `"` + t.text + `"`
		}
	}
	return strings.Join(parts, " ")
}

// canonical drops parenthesis nodes, whose grouping the tree shape already
// records, and the casts PostgreSQL adds to literals and column references.
func canonical(expr parser.Expr) parser.Expr {
	switch e := expr.(type) {
	case nil:
		return nil
	case *parser.ParenExpr:
		return canonical(e.Expr)
	case *parser.CastExpr:
		inner := canonical(e.Expr)
		switch inner.(type) {
		case *parser.SQLVal, *parser.ColName, *parser.NullVal:
			return inner
		}
		c := *e
		c.Expr = inner
		return &c
	case *parser.AndExpr:
		c := *e
		c.Left, c.Right = canonical(e.Left), canonical(e.Right)
		return &c
	case *parser.OrExpr:
		c := *e
		c.Left, c.Right = canonical(e.Left), canonical(e.Right)
		return &c
	case *parser.NotExpr:
		c := *e
		c.Expr = canonical(e.Expr)
		return &c
	case *parser.ComparisonExpr:
		c := *e
		c.Left, c.Right, c.Escape = canonical(e.Left), canonical(e.Right), canonical(e.Escape)
		return &c
	case *parser.IsExpr:
		c := *e
		c.Expr = canonical(e.Expr)
		return &c
	case *parser.BinaryExpr:
		c := *e
		c.Left, c.Right = canonical(e.Left), canonical(e.Right)
		return &c
	case *parser.UnaryExpr:
		c := *e
		c.Expr = canonical(e.Expr)
		return &c
	case *parser.FuncExpr:
		c := *e
		c.Exprs = make(parser.SelectExprs, len(e.Exprs))
		for i, arg := range e.Exprs {
			if a, ok := arg.(*parser.AliasedExpr); ok {
				arg = &parser.AliasedExpr{Expr: canonical(a.Expr), As: a.As}
			}
			c.Exprs[i] = arg
		}
		return &c
	case *parser.FuncCallExpr:
		c := *e
		c.Exprs = make(parser.Exprs, len(e.Exprs))
		for i, arg := range e.Exprs {
			c.Exprs[i] = canonical(arg)
		}
		return &c
	case parser.ValTuple:
		out := make(parser.ValTuple, len(e))
		for i, v := range e {
			out[i] = canonical(v)
		}
		return out
	default:
		return expr
	}
}

// words never treated as column references
var exprKeywords = map[string]bool{
	"and": true, "or": true, "not": true, "is": true, "null": true, "true": true, "false": true,
	"in": true, "like": true, "ilike": true, "between": true, "case": true, "when": true,
	"then": true, "else": true, "end": true, "any": true, "all": true, "array": true,
	"similar": true, "to": true, "escape": true, "distinct": true, "from": true,
	"current_date": true, "current_timestamp": true, "current_time": true, "localtimestamp": true,
	"check": true, "asc": true, "desc": true, "nulls": true,
}

// ExpressionIdentifiers returns the bare identifiers of expr that are neither
// keywords nor function names, in order of first appearance.
func ExpressionIdentifiers(expr string) []string {
	toks := stripCasts(tokenize(expr))
	seen := map[string]bool{}
	var ids []string
	for i, t := range toks {
		if t.kind != tokWord && t.kind != tokQuoted {
			continue
		}
		if t.kind == tokWord && exprKeywords[t.text] {
			continue
		}
		if i+1 < len(toks) && toks[i+1].text == "(" {
			continue
		}
		if i > 0 && toks[i-1].text == "." {
			continue
		}
		if !seen[t.text] {
			seen[t.text] = true
			ids = append(ids, t.text)
		}
	}
	return ids
}

var plainMember = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// IsExpressionMember reports whether an index member is an expression such as
// lower(email) rather than a bare column name.
func IsExpressionMember(member string) bool {
	return !plainMember.MatchString(member)
}

// ExpressionWords returns the words and quoted identifiers of expr in order,
// function names included and casts removed.
func ExpressionWords(expr string) []string {
	var words []string
	for _, t := range stripCasts(tokenize(expr)) {
		if t.kind == tokWord || t.kind == tokQuoted {
			words = append(words, t.text)
		}
	}
	return words
}
