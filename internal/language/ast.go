package language

import "github.com/vektah/gqlparser/v2/ast"

// Executable document nodes, shared with the parser.
type (
	QueryDocument       = ast.QueryDocument
	OperationDefinition = ast.OperationDefinition
	SelectionSet        = ast.SelectionSet
	Field               = ast.Field
	InlineFragment      = ast.InlineFragment
	FragmentSpread      = ast.FragmentSpread
	Directive           = ast.Directive
	DirectiveList       = ast.DirectiveList
	ArgumentList        = ast.ArgumentList
	Value               = ast.Value
)

const (
	Query        = ast.Query
	Mutation     = ast.Mutation
	Subscription = ast.Subscription
)

// Value kinds the executor converts from literals.
const (
	Variable     = ast.Variable
	IntValue     = ast.IntValue
	FloatValue   = ast.FloatValue
	BooleanValue = ast.BooleanValue
	NullValue    = ast.NullValue
	ListValue    = ast.ListValue
	ObjectValue  = ast.ObjectValue
)
