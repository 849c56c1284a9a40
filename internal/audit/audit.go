// Package audit emits login audit events to the message bus.
package audit

import (
	"context"
	"time"
)

const (
	// EventTypeUserLoggedIn identifies login audit events on the bus.
	EventTypeUserLoggedIn = "user.logged_in"
	// ResultAuthorized is the result recorded for a successful login.
	ResultAuthorized = "authorized"
)

// Event records the outcome of a login.
type Event struct {
	UserID    string    `json:"userId"`
	Result    string    `json:"result"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher emits audit events. Implementations return once the bus has
// acknowledged the event.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
