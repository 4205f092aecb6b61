package notify

import (
	"context"
	"sync"
)

// Sent is one notification captured by a Recorder.
type Sent struct {
	UserID  string
	Message string
	Link    string
}

// Recorder is a Notifier that keeps every notification in memory. Used in tests.
type Recorder struct {
	mu   sync.Mutex
	sent []Sent
}

func (r *Recorder) Notify(_ context.Context, userID, message, link string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Sent{UserID: userID, Message: message, Link: link})
}

// Sent returns a copy of everything recorded so far.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sent, len(r.sent))
	copy(out, r.sent)
	return out
}

// For returns the notifications recorded for one user.
func (r *Recorder) For(userID string) []Sent {
	var out []Sent
	for _, s := range r.Sent() {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out
}
