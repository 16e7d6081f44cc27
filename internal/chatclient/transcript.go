package chatclient

import (
	"sync"

	"market-chat/internal/transport/httpdto"
)

// Transcript is the ordered, deduplicated view of one conversation's
// messages. A message arriving both from the submission response and from
// the room broadcast lands exactly once.
type Transcript struct {
	mu       sync.Mutex
	messages []httpdto.MessageResponse
	seen     map[string]bool
}

func NewTranscript() *Transcript {
	return &Transcript{seen: make(map[string]bool)}
}

// Add appends the message unless its ID is already present. Returns whether
// the message was added.
func (t *Transcript) Add(m httpdto.MessageResponse) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if m.ID != "" && t.seen[m.ID] {
		return false
	}
	if m.ID != "" {
		t.seen[m.ID] = true
	}
	t.messages = append(t.messages, m)
	return true
}

// Reset replaces the transcript with a freshly fetched history.
func (t *Transcript) Reset(history []httpdto.MessageResponse) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.messages = t.messages[:0]
	t.seen = make(map[string]bool, len(history))
	for _, m := range history {
		if m.ID != "" && t.seen[m.ID] {
			continue
		}
		if m.ID != "" {
			t.seen[m.ID] = true
		}
		t.messages = append(t.messages, m)
	}
}

// Messages returns a copy of the transcript in display order.
func (t *Transcript) Messages() []httpdto.MessageResponse {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]httpdto.MessageResponse, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of displayed messages.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}
