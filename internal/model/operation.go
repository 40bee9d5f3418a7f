package model

import "fmt"

// Operation is one of the CRUD operations every model supports.
type Operation string

const (
	OpRead       Operation = "read"
	OpReadMany   Operation = "readMany"
	OpCount      Operation = "count"
	OpCreate     Operation = "create"
	OpCreateMany Operation = "createMany"
	OpUpdate     Operation = "update"
	OpUpdateMany Operation = "updateMany"
	OpDelete     Operation = "delete"
	OpDeleteMany Operation = "deleteMany"
)

// Alias names an operation as exposed to server-side callers. Every
// Operation is also an Alias.
type Alias string

const (
	AliasGet      Alias = "get"
	AliasFind     Alias = "find"
	AliasList     Alias = "list"
	AliasEdit     Alias = "edit"
	AliasEditMany Alias = "editMany"
)

// Root is the GraphQL root type an operation is exposed on.
type Root string

const (
	RootQuery    Root = "Query"
	RootMutation Root = "Mutation"
)

// OperationDef describes how an operation is exposed.
type OperationDef struct {
	Op      Operation
	Suffix  string
	Root    Root
	Aliases []Alias
}

// Operations lists every operation, queries first, in declaration order.
var Operations = []OperationDef{
	{Op: OpRead, Suffix: "", Root: RootQuery, Aliases: []Alias{AliasGet, AliasFind}},
	{Op: OpReadMany, Suffix: "List", Root: RootQuery, Aliases: []Alias{AliasList}},
	{Op: OpCount, Suffix: "Count", Root: RootQuery},
	{Op: OpCreate, Suffix: "Create", Root: RootMutation},
	{Op: OpCreateMany, Suffix: "CreateMany", Root: RootMutation},
	{Op: OpUpdate, Suffix: "Update", Root: RootMutation, Aliases: []Alias{AliasEdit}},
	{Op: OpUpdateMany, Suffix: "UpdateMany", Root: RootMutation, Aliases: []Alias{AliasEditMany}},
	{Op: OpDelete, Suffix: "Delete", Root: RootMutation},
	{Op: OpDeleteMany, Suffix: "DeleteMany", Root: RootMutation},
}

// OperationsFor returns the operations exposed on root.
func OperationsFor(root Root) []OperationDef {
	var out []OperationDef
	for _, def := range Operations {
		if def.Root == root {
			out = append(out, def)
		}
	}
	return out
}

// Def returns the definition of op.
func (op Operation) Def() (OperationDef, bool) {
	for _, def := range Operations {
		if def.Op == op {
			return def, true
		}
	}
	return OperationDef{}, false
}

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	_, ok := op.Def()
	return ok
}

// ParseOperation validates an operation name.
func ParseOperation(s string) (Operation, error) {
	op := Operation(s)
	if !op.Valid() {
		return "", fmt.Errorf("unknown operation %q", s)
	}
	return op, nil
}

// Resolve maps an alias to its operation.
func (a Alias) Resolve() (Operation, bool) {
	if op := Operation(a); op.Valid() {
		return op, true
	}
	for _, def := range Operations {
		for _, alias := range def.Aliases {
			if alias == a {
				return def.Op, true
			}
		}
	}
	return "", false
}

// Aliases returns every alias in a stable order: operations first, then the
// extra names.
func Aliases() []Alias {
	var out []Alias
	for _, def := range Operations {
		out = append(out, Alias(def.Op))
	}
	for _, def := range Operations {
		out = append(out, def.Aliases...)
	}
	return out
}
