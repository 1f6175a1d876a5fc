// Package language wraps the gqlparser query parser and re-exports the
// document nodes the executor walks.
package language

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// ParseQuery parses an executable document. Syntax errors are returned as
// *gqlerror.Error with locations.
func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// SelectOperation returns the operation named name. An empty name selects
// the only operation of the document and yields nil when there are several.
func SelectOperation(doc *QueryDocument, name string) *OperationDefinition {
	if name == "" {
		if len(doc.Operations) != 1 {
			return nil
		}
		return doc.Operations[0]
	}
	return doc.Operations.ForName(name)
}
