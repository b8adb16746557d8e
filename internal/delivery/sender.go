package delivery

import "context"

// Sender abstracts the outbound email transport. Both bodies are always
// provided; transports that only accept one format may drop the other.
// A nil error means the transport accepted the message, not that it was
// delivered to an inbox.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody, textBody string) error
}
