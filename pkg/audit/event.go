// Package audit records one event per driver command in a JSON-lines file.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Event is an auditable driver command invocation
type Event struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	User        string            `json:"user"`
	Resource    string            `json:"resource"`
	Address     string            `json:"address,omitempty"`
	Reservation string            `json:"reservation,omitempty"`
	Command     string            `json:"command"`
	Params      map[string]string `json:"params,omitempty"`
	Success     bool              `json:"success"`
	Error       string            `json:"error,omitempty"`
	Locked      bool              `json:"locked"` // ran under the resource lock
	Duration    time.Duration     `json:"duration"`
}

// NewEvent creates a new audit event
func NewEvent(user, resource, command string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		User:      user,
		Resource:  resource,
		Command:   command,
	}
}

// WithAddress sets the management address of the resource
func (e *Event) WithAddress(addr string) *Event {
	e.Address = addr
	return e
}

// WithReservation sets the reservation id
func (e *Event) WithReservation(id string) *Event {
	e.Reservation = id
	return e
}

// WithParam records one command parameter. Empty values are skipped.
func (e *Event) WithParam(key, value string) *Event {
	if value == "" {
		return e
	}
	if e.Params == nil {
		e.Params = make(map[string]string)
	}
	e.Params[key] = value
	return e
}

// WithLocked marks the command as having run under the resource lock
func (e *Event) WithLocked(locked bool) *Event {
	e.Locked = locked
	return e
}

// WithSuccess marks the event as successful
func (e *Event) WithSuccess() *Event {
	e.Success = true
	e.Error = ""
	return e
}

// WithError marks the event as failed
func (e *Event) WithError(err error) *Event {
	e.Success = false
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithResult sets success or failure from err
func (e *Event) WithResult(err error) *Event {
	if err != nil {
		return e.WithError(err)
	}
	return e.WithSuccess()
}

// WithDuration sets the command duration
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}
