// Package mail abstracts the external mail collaborator.
package mail

import (
	"context"
	"errors"
	"time"
)

// ErrMessageNotFound indicates the referenced message does not exist.
var ErrMessageNotFound = errors.New("message not found")

// MessageRef is a lightweight listing entry.
type MessageRef struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	From       string    `json:"from"`
	ReceivedAt time.Time `json:"received_at"`
}

// Message is a fully fetched message body.
type Message struct {
	MessageRef

	Body string `json:"body"`
}

// Filter narrows a message listing.
type Filter struct {
	From  string
	Since time.Time
	Limit int
}

// Client is the mail collaborator contract.
type Client interface {
	ListMessages(ctx context.Context, filter Filter) ([]MessageRef, error)
	FetchMessage(ctx context.Context, id string) (*Message, error)
}

// IsMessageNotFound checks if an error indicates a missing message.
func IsMessageNotFound(err error) bool {
	return errors.Is(err, ErrMessageNotFound)
}
