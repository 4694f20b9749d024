package diff

import (
	"fmt"
	"strings"

	"github.com/ridoystarlord/schemasync/schema"
)

type OperationType string

const (
	CreateExtension OperationType = "CREATE_EXTENSION"
	DropExtension   OperationType = "DROP_EXTENSION"
	AlterExtension  OperationType = "ALTER_EXTENSION"
	CreateEnum      OperationType = "CREATE_ENUM"
	DropEnum        OperationType = "DROP_ENUM"
	AddEnumValue    OperationType = "ADD_ENUM_VALUE"
	CreateFunction  OperationType = "CREATE_FUNCTION"
	DropFunction    OperationType = "DROP_FUNCTION"
	ReplaceFunction OperationType = "REPLACE_FUNCTION"
	SetParameter    OperationType = "SET_PARAMETER"
	ResetParameter  OperationType = "RESET_PARAMETER"
	CreateTable     OperationType = "CREATE_TABLE"
	DropTable       OperationType = "DROP_TABLE"
	AddColumn       OperationType = "ADD_COLUMN"
	DropColumn      OperationType = "DROP_COLUMN"
	AlterColumn     OperationType = "ALTER_COLUMN"
	AddConstraint   OperationType = "ADD_CONSTRAINT"
	DropConstraint  OperationType = "DROP_CONSTRAINT"
	CreateIndex     OperationType = "CREATE_INDEX"
	DropIndex       OperationType = "DROP_INDEX"
	CreateTrigger   OperationType = "CREATE_TRIGGER"
	DropTrigger     OperationType = "DROP_TRIGGER"
)

// Operation is one classified change. Only the payload fields relevant to
// Type are set.
type Operation struct {
	Type      OperationType
	Schema    string // namespace of the affected object
	TableName string

	Table      *schema.Table  // CREATE_TABLE (synchronized children only), DROP_TABLE (as it exists)
	Column     *schema.Column // ADD_COLUMN, DROP_COLUMN (as it exists), ALTER_COLUMN (target)
	OldColumn  *schema.Column // ALTER_COLUMN (as it exists)
	Constraint schema.Constraint
	Index      *schema.Index
	Trigger    *schema.Trigger
	Enum       *schema.Enum
	EnumValue  string // ADD_ENUM_VALUE
	Extension  *schema.Extension
	Function   *schema.Function
	Parameter  *schema.Parameter
}

// Name is the name of the object the operation creates, alters or drops.
func (op Operation) Name() string {
	switch {
	case op.Constraint != nil:
		return op.Constraint.ConstraintName()
	case op.Index != nil:
		return op.Index.Name
	case op.Trigger != nil:
		return op.Trigger.Name
	case op.Column != nil:
		return op.Column.Name
	case op.Table != nil:
		return op.Table.Name
	case op.Enum != nil:
		return op.Enum.Name
	case op.Extension != nil:
		return op.Extension.Name
	case op.Function != nil:
		return op.Function.Name
	case op.Parameter != nil:
		return op.Parameter.Name
	}
	return op.TableName
}

// Entity is the qualified name used in reports and errors:
// schema.table, schema.table.column or schema.table#name.
func (op Operation) Entity() string {
	switch op.Type {
	case CreateTable, DropTable:
		return schema.Qualify(op.Schema, op.TableName)
	case AddColumn, DropColumn, AlterColumn:
		return schema.Qualify(op.Schema, op.TableName, op.Name())
	case AddConstraint, DropConstraint, CreateIndex, DropIndex, CreateTrigger, DropTrigger:
		return schema.Qualify(op.Schema, op.TableName) + "#" + op.Name()
	case CreateExtension, DropExtension, AlterExtension, SetParameter, ResetParameter:
		return op.Name()
	}
	return schema.Qualify(op.Schema, op.Name())
}

// Describe renders a one-line, human readable summary for dry runs.
func (op Operation) Describe() string {
	table := schema.Qualify(op.Schema, op.TableName)
	switch op.Type {
	case CreateTable:
		return fmt.Sprintf("create table %s (%d columns, %d constraints, %d indexes, %d triggers)",
			table, len(op.Table.Columns), len(op.Table.Constraints), len(op.Table.Indexes), len(op.Table.Triggers))
	case DropTable:
		return "drop table " + table
	case AddColumn:
		return fmt.Sprintf("add column %s.%s %s", table, op.Column.Name, op.Column.SQLType())
	case DropColumn:
		return fmt.Sprintf("drop column %s.%s", table, op.Column.Name)
	case AlterColumn:
		return fmt.Sprintf("alter column %s.%s (%s)", table, op.Column.Name, strings.Join(ColumnChanges(*op.OldColumn, *op.Column), ", "))
	case AddConstraint:
		return fmt.Sprintf("add %s constraint %s on %s", kindLabel(op.Constraint.Kind()), op.Constraint.ConstraintName(), table)
	case DropConstraint:
		return fmt.Sprintf("drop %s constraint %s on %s", kindLabel(op.Constraint.Kind()), op.Constraint.ConstraintName(), table)
	case CreateIndex:
		return fmt.Sprintf("create index %s on %s (%s)", op.Index.Name, table, strings.Join(op.Index.Columns, ", "))
	case DropIndex:
		return fmt.Sprintf("drop index %s on %s", op.Index.Name, table)
	case CreateTrigger:
		return fmt.Sprintf("create trigger %s on %s", op.Trigger.Name, table)
	case DropTrigger:
		return fmt.Sprintf("drop trigger %s on %s", op.Trigger.Name, table)
	case CreateEnum:
		return fmt.Sprintf("create enum %s (%s)", op.Enum.Name, strings.Join(op.Enum.Values, ", "))
	case DropEnum:
		return "drop enum " + op.Enum.Name
	case AddEnumValue:
		return fmt.Sprintf("add value %q to enum %s", op.EnumValue, op.Enum.Name)
	case CreateExtension:
		return "create extension " + op.Extension.Name
	case DropExtension:
		return "drop extension " + op.Extension.Name
	case AlterExtension:
		return fmt.Sprintf("update extension %s to %s", op.Extension.Name, op.Extension.Version)
	case CreateFunction:
		return fmt.Sprintf("create function %s(%s)", op.Function.Name, op.Function.Arguments)
	case DropFunction:
		return fmt.Sprintf("drop function %s(%s)", op.Function.Name, op.Function.Arguments)
	case ReplaceFunction:
		return fmt.Sprintf("replace function %s(%s)", op.Function.Name, op.Function.Arguments)
	case SetParameter:
		return fmt.Sprintf("set parameter %s = %s", op.Parameter.Name, op.Parameter.Value)
	case ResetParameter:
		return "reset parameter " + op.Parameter.Name
	}
	return string(op.Type)
}

func kindLabel(k schema.ObjectKind) string {
	return strings.ToLower(strings.ReplaceAll(string(k), "_", " "))
}

// ColumnChanges lists the attribute differences between two versions of a column.
func ColumnChanges(old, new schema.Column) []string {
	var changes []string
	if old.SQLType() != new.SQLType() {
		changes = append(changes, fmt.Sprintf("type %s -> %s", old.SQLType(), new.SQLType()))
	}
	if old.Nullable != new.Nullable {
		if new.Nullable {
			changes = append(changes, "drop not null")
		} else {
			changes = append(changes, "set not null")
		}
	}
	if !defaultsEqual(old.Default, new.Default) {
		if new.Default == nil {
			changes = append(changes, "drop default")
		} else {
			changes = append(changes, "set default "+*new.Default)
		}
	}
	return changes
}

// ChangeSet is the unordered result of comparing two snapshots. Operations are
// grouped by entity kind; ordering by dependency is the planner's job.
type ChangeSet struct {
	Database   string
	Schema     string
	Operations []Operation
	Warnings   []string
}

func (c *ChangeSet) Empty() bool {
	return len(c.Operations) == 0
}
