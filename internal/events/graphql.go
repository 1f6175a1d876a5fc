package events

import "time"

// GraphQLStart is emitted before executing a GraphQL operation.
type GraphQLStart struct {
	Query         string
	OperationName string
	OperationType string
}

// GraphQLFinish is emitted after executing a GraphQL operation.
type GraphQLFinish struct {
	Query         string
	OperationName string
	OperationType string
	Errors        []error
	Duration      time.Duration
}

// SubscriptionStart is emitted once a subscription's source stream has been
// created. ID is unique per subscription.
type SubscriptionStart struct {
	ID            string
	OperationName string
	Field         string
}

// SubscriptionEvent is emitted after the selection set ran for one event.
type SubscriptionEvent struct {
	ID       string
	Field    string
	Errors   int
	Duration time.Duration
}

// SubscriptionFinish is emitted when the response stream ends, is cancelled
// or fails. Err is nil for a normal end of stream.
type SubscriptionFinish struct {
	ID       string
	Field    string
	Events   int
	Err      error
	Duration time.Duration
}
