package schema

import "strings"

// ObjectKind identifies the nameable entity kinds: the four constraint kinds and indexes.
type ObjectKind string

const (
	KindPrimaryKey ObjectKind = "PRIMARY_KEY"
	KindForeignKey ObjectKind = "FOREIGN_KEY"
	KindUnique     ObjectKind = "UNIQUE"
	KindCheck      ObjectKind = "CHECK"
	KindIndex      ObjectKind = "INDEX"
)

// ParseObjectKind accepts the canonical names plus the short forms used in declarations.
func ParseObjectKind(s string) (ObjectKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "primary_key", "primary", "pk":
		return KindPrimaryKey, true
	case "foreign_key", "foreign", "fk":
		return KindForeignKey, true
	case "unique", "uq":
		return KindUnique, true
	case "check", "chk":
		return KindCheck, true
	case "index", "idx":
		return KindIndex, true
	}
	return "", false
}

// Constraint is a closed set: only the four types in this file implement it.
// Code that must treat every kind goes through MatchConstraint so that adding
// a kind breaks the build everywhere it has to be handled.
type Constraint interface {
	ConstraintName() string
	Table() string
	Kind() ObjectKind
	// CoveredColumns are the local columns the constraint depends on.
	CoveredColumns() []string
	Synchronized() bool
	sealed()
}

// ConstraintBase carries the attributes every constraint kind shares.
type ConstraintBase struct {
	Name        string
	TableName   string
	Synchronize bool
}

func (b ConstraintBase) ConstraintName() string { return b.Name }
func (b ConstraintBase) Table() string          { return b.TableName }
func (b ConstraintBase) Synchronized() bool     { return b.Synchronize }
func (ConstraintBase) sealed()                  {}

type PrimaryKeyConstraint struct {
	ConstraintBase
	Columns []string
}

type ForeignKeyConstraint struct {
	ConstraintBase
	Columns          []string
	ReferenceTable   string
	ReferenceColumns []string
	OnDelete         Action
	OnUpdate         Action
}

type UniqueConstraint struct {
	ConstraintBase
	Columns []string
}

type CheckConstraint struct {
	ConstraintBase
	Expression string
	// Columns referenced by Expression, in order of first appearance.
	Columns []string
}

func (*PrimaryKeyConstraint) Kind() ObjectKind { return KindPrimaryKey }
func (*ForeignKeyConstraint) Kind() ObjectKind { return KindForeignKey }
func (*UniqueConstraint) Kind() ObjectKind     { return KindUnique }
func (*CheckConstraint) Kind() ObjectKind      { return KindCheck }

func (c *PrimaryKeyConstraint) CoveredColumns() []string { return c.Columns }
func (c *ForeignKeyConstraint) CoveredColumns() []string { return c.Columns }
func (c *UniqueConstraint) CoveredColumns() []string     { return c.Columns }
func (c *CheckConstraint) CoveredColumns() []string      { return c.Columns }

// MatchConstraint dispatches on the concrete kind of c.
func MatchConstraint[T any](
	c Constraint,
	pk func(*PrimaryKeyConstraint) T,
	fk func(*ForeignKeyConstraint) T,
	uq func(*UniqueConstraint) T,
	ck func(*CheckConstraint) T,
) T {
	switch v := c.(type) {
	case *PrimaryKeyConstraint:
		return pk(v)
	case *ForeignKeyConstraint:
		return fk(v)
	case *UniqueConstraint:
		return uq(v)
	case *CheckConstraint:
		return ck(v)
	}
	panic("schema: unknown constraint type")
}

// Action is a referential action of a foreign key.
type Action string

const (
	NoAction   Action = "NO ACTION"
	Restrict   Action = "RESTRICT"
	Cascade    Action = "CASCADE"
	SetNull    Action = "SET NULL"
	SetDefault Action = "SET DEFAULT"
)

// ParseAction normalizes a referential action; empty means NO ACTION.
func ParseAction(s string) (Action, bool) {
	norm := strings.Join(strings.Fields(strings.ToUpper(strings.ReplaceAll(s, "_", " "))), " ")
	switch Action(norm) {
	case "":
		return NoAction, true
	case NoAction, Restrict, Cascade, SetNull, SetDefault:
		return Action(norm), true
	}
	return "", false
}
