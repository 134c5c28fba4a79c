package ports

import "context"

// Notifier delivers a formatted message to the configured notification
// channel. The body is plain text; schema stability of its sections is a soft
// contract only.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}
