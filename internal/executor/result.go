package executor

// GraphQLError represents an error that occurred during execution
type GraphQLError struct {
	Message    string         `json:"message"`
	Locations  []Location     `json:"locations,omitempty"`
	Path       Path           `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Location is a position in the query document.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

func (e GraphQLError) Error() string {
	return e.Message
}

// ExecutionResult represents the result of executing a GraphQL query
type ExecutionResult struct {
	Data       any            `json:"data"`
	Errors     []GraphQLError `json:"errors,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}
