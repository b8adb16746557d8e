package delivery

import (
	"context"
	"errors"
	"sync"
)

// SentEmail records one accepted message on the mock transport.
type SentEmail struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// MockSender is an in-memory transport for tests and local development.
// It logs nothing; tests inspect Sent() directly.
type MockSender struct {
	mu   sync.Mutex
	sent []SentEmail

	// FailFirst makes the first n Send calls fail before succeeding.
	// -1 means fail forever.
	FailFirst int
	// Err overrides the error returned on a forced failure.
	Err error

	calls int
}

func NewMockSender() *MockSender { return &MockSender{} }

func (m *MockSender) Send(_ context.Context, to, subject, htmlBody, textBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.FailFirst == -1 || m.calls <= m.FailFirst {
		if m.Err != nil {
			return m.Err
		}
		return errors.New("mock transport rejected message")
	}
	m.sent = append(m.sent, SentEmail{To: to, Subject: subject, HTMLBody: htmlBody, TextBody: textBody})
	return nil
}

// Sent returns a snapshot of accepted messages.
func (m *MockSender) Sent() []SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentEmail, len(m.sent))
	copy(out, m.sent)
	return out
}

// Calls returns the total number of Send invocations, including failures.
func (m *MockSender) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ Sender = (*MockSender)(nil)
