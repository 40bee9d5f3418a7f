package gqlrequest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/printer"
	"github.com/graphql-go/graphql/language/source"
)

// AnonymousOperation names operations without a name.
const AnonymousOperation = "<anonymous>"

// ErrNoQuery marks a request without a query document.
var ErrNoQuery = errors.New("request has no query")

// Analysis is what the server learns about a request before executing it.
// When Err is set the remaining fields are best effort and the GraphQL
// handler reports the actual error to the client.
type Analysis struct {
	Request Request

	Operation     *ast.OperationDefinition
	OperationName string
	OperationType string
	// RootFields lists the top-level fields in document order, for example
	// "listCreate" or "userList".
	RootFields []string
	FieldCount int
	Depth      int
	// Hash identifies the operation and the fragments it uses, independent
	// of formatting.
	Hash string

	Err error
}

// AnalyzeHTTP decodes and analyzes r.
func AnalyzeHTTP(r *http.Request) *Analysis {
	req, err := Decode(r)
	if err != nil {
		return &Analysis{Request: req, Err: err}
	}
	return Analyze(req)
}

// Analyze parses the query of req and selects the operation to run.
func Analyze(req Request) *Analysis {
	a := &Analysis{Request: req}
	if strings.TrimSpace(req.Query) == "" {
		a.Err = ErrNoQuery
		return a
	}

	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{Body: []byte(req.Query), Name: "GraphQL request"}),
	})
	if err != nil {
		a.Err = err
		return a
	}

	fragments := make(map[string]*ast.FragmentDefinition)
	var operations []*ast.OperationDefinition
	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.OperationDefinition:
			operations = append(operations, d)
		case *ast.FragmentDefinition:
			if d.Name != nil {
				fragments[d.Name.Value] = d
			}
		}
	}

	op, err := selectOperation(operations, req.OperationName)
	if err != nil {
		a.Err = err
		return a
	}
	a.Operation = op
	a.OperationName = AnonymousOperation
	if op.Name != nil && op.Name.Value != "" {
		a.OperationName = op.Name.Value
	}
	a.OperationType = string(op.Operation)

	w := walker{fragments: fragments, used: make(map[string]bool)}
	a.RootFields = w.rootFields(op.SelectionSet, nil, make(map[string]bool))
	a.FieldCount, a.Depth = w.walk(op.SelectionSet, 1, make(map[string]bool))
	a.Hash = w.hash(op, a.OperationName)
	return a
}

func selectOperation(operations []*ast.OperationDefinition, name string) (*ast.OperationDefinition, error) {
	if name != "" {
		for _, op := range operations {
			if op.Name != nil && op.Name.Value == name {
				return op, nil
			}
		}
		return nil, fmt.Errorf("unknown operation named %q", name)
	}
	switch len(operations) {
	case 0:
		return nil, fmt.Errorf("request does not include an operation")
	case 1:
		return operations[0], nil
	}
	return nil, fmt.Errorf("operationName is required when request has multiple operations")
}

// walker measures selection sets and records the fragments they spread.
type walker struct {
	fragments map[string]*ast.FragmentDefinition
	used      map[string]bool
}

func (w *walker) rootFields(set *ast.SelectionSet, out []string, seen map[string]bool) []string {
	if set == nil {
		return out
	}
	for _, sel := range set.Selections {
		switch s := sel.(type) {
		case *ast.Field:
			out = append(out, s.Name.Value)
		case *ast.InlineFragment:
			out = w.rootFields(s.SelectionSet, out, seen)
		case *ast.FragmentSpread:
			if frag := w.fragments[s.Name.Value]; frag != nil && !seen[s.Name.Value] {
				seen[s.Name.Value] = true
				out = w.rootFields(frag.SelectionSet, out, seen)
			}
		}
	}
	return out
}

// walk returns the number of fields below set and the deepest field level.
// Fragment cycles are cut at the first repeat.
func (w *walker) walk(set *ast.SelectionSet, level int, active map[string]bool) (fields, depth int) {
	if set == nil {
		return 0, level - 1
	}
	depth = level
	add := func(f, d int) {
		fields += f
		if d > depth {
			depth = d
		}
	}
	for _, sel := range set.Selections {
		switch s := sel.(type) {
		case *ast.Field:
			fields++
			if s.SelectionSet != nil {
				add(w.walk(s.SelectionSet, level+1, active))
			}
		case *ast.InlineFragment:
			add(w.walk(s.SelectionSet, level, active))
		case *ast.FragmentSpread:
			name := s.Name.Value
			frag := w.fragments[name]
			if frag == nil || active[name] {
				continue
			}
			w.used[name] = true
			active[name] = true
			add(w.walk(frag.SelectionSet, level, active))
			delete(active, name)
		}
	}
	return fields, depth
}

// hash prints the operation and the fragments it used in name order and
// hashes the result together with the operation name.
func (w *walker) hash(op *ast.OperationDefinition, name string) string {
	names := make([]string, 0, len(w.used))
	for n := range w.used {
		names = append(names, n)
	}
	sort.Strings(names)

	defs := []ast.Node{op}
	for _, n := range names {
		defs = append(defs, w.fragments[n])
	}
	printed, _ := printer.Print(ast.NewDocument(&ast.Document{Definitions: defs})).(string)

	sum := sha256.New()
	for _, part := range []string{printed, name} {
		_, _ = fmt.Fprintf(sum, "%d:%s|", len(part), part)
	}
	return hex.EncodeToString(sum.Sum(nil))
}
