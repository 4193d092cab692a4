// Package events defines the domain events emitted after a unit of work
// commits, and the publishers that deliver them.
package events

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/ledgerbank/internal/models"
)

// Type names a domain event.
type Type string

const (
	ClientCreated    Type = "ClientCreated"
	ClientDeleted    Type = "ClientDeleted"
	AccountCreated   Type = "AccountCreated"
	MoneyDeposited   Type = "MoneyDeposited"
	MoneyTransferred Type = "MoneyTransferred"
	ManagerAdded     Type = "ManagerAdded"
)

// Event is a committed fact about the ledger. Fields that do not apply to
// the event type are left empty.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`

	Username      string         `json:"username,omitempty"`
	AccountID     int64          `json:"accountId,omitempty"`
	DestinationID int64          `json:"destinationAccountId,omitempty"`
	Amount        *models.Amount `json:"amount,omitempty"`
	Manager       string         `json:"manager,omitempty"`
}

// New stamps an event of type t with a fresh id and the current time.
func New(t Type) Event {
	return Event{ID: uuid.NewString(), Type: t, OccurredAt: time.Now().UTC()}
}

// Key is the partitioning key: the account for money and access events,
// the client otherwise.
func (e Event) Key() string {
	if e.AccountID != 0 {
		return "account-" + strconv.FormatInt(e.AccountID, 10)
	}
	return "client-" + e.Username
}

// Publisher delivers committed events.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, ...Event) error { return nil }
func (Nop) Close() error                            { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, events ...Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the types of everything published so far, in order.
func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
