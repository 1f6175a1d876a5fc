package events

import "time"

// SchemaBuilt is emitted after a schema generation attempt.
type SchemaBuilt struct {
	Source   string
	Types    int
	Fields   int
	Err      error
	Duration time.Duration
}
