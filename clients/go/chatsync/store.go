package chatsync

import (
	"sort"
	"sync"
	"time"
)

// confirmGraceWindow bounds how far apart the local and server timestamps of
// the same logical send may be for the provisional copy to be replaced in
// place. The match is a documented heuristic (sender + body + window): the
// backend assigns no client-correlation id to do better.
const confirmGraceWindow = 15 * time.Second

// MessageStore is the canonical in-memory ordered collection of messages for
// one channel and the single merge authority. Display order is always
// recomputed from CreatedAt (ties broken by id), never from arrival order,
// so out-of-order delivery from retried subscriptions cannot reorder the
// view.
type MessageStore struct {
	mu         sync.Mutex
	channelID  string
	msgs       []Message
	keys       map[string]struct{}
	loadFailed bool
	onChange   func()
}

// NewMessageStore creates an empty store for one channel. onChange fires
// after every mutation that altered the visible set; it may be nil.
func NewMessageStore(channelID string, onChange func()) *MessageStore {
	return &MessageStore{
		channelID: channelID,
		keys:      make(map[string]struct{}),
		onChange:  onChange,
	}
}

// LoadInitial replaces the store content wholesale. It is used once per
// channel activation and again when the caller re-fetches after a
// reconnection gap.
func (s *MessageStore) LoadInitial(msgs []Message) {
	s.mu.Lock()
	s.msgs = make([]Message, 0, len(msgs))
	s.keys = make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		if _, dup := s.keys[m.Key()]; dup {
			continue
		}
		s.keys[m.Key()] = struct{}{}
		s.msgs = append(s.msgs, m)
	}
	sortMessages(s.msgs)
	s.loadFailed = false
	s.mu.Unlock()
	s.notify()
}

// FailLoad records that the bulk fetch did not complete. The store stays
// empty; there is no retry loop here.
func (s *MessageStore) FailLoad() {
	s.mu.Lock()
	s.msgs = nil
	s.keys = make(map[string]struct{})
	s.loadFailed = true
	s.mu.Unlock()
	s.notify()
}

// LoadFailed reports whether the last bulk fetch failed.
func (s *MessageStore) LoadFailed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadFailed
}

// MergeIncoming inserts a message idempotently. A duplicate id is a no-op,
// so retried subscription deliveries cannot duplicate the view. A confirmed
// message that matches an outstanding pending provisional (same sender, same
// body, created within the grace window) replaces it in place, so a user
// never sees their own message twice.
func (s *MessageStore) MergeIncoming(m Message) {
	s.mu.Lock()
	if _, dup := s.keys[m.Key()]; dup {
		s.mu.Unlock()
		return
	}

	if m.State == Confirmed {
		if i := s.findPendingMatch(m); i >= 0 {
			delete(s.keys, s.msgs[i].Key())
			s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
		}
	}

	s.keys[m.Key()] = struct{}{}
	s.msgs = append(s.msgs, m)
	sortMessages(s.msgs)
	s.mu.Unlock()
	s.notify()
}

// ApplyUpdate replaces the mutable fields of the matching message, notably
// reactions. An unknown id means the update outran its insert; that is an
// acceptable lost update, not an error.
func (s *MessageStore) ApplyUpdate(m Message) {
	s.mu.Lock()
	i := s.indexOf(m.Key())
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.msgs[i].Body = m.Body
	s.msgs[i].Reactions = m.Reactions
	s.mu.Unlock()
	s.notify()
}

// MarkFailed flags the provisional message with the given local token as
// rejected. It stays in the store, visually degraded, until the user acts.
func (s *MessageStore) MarkFailed(localID string) {
	s.mu.Lock()
	changed := false
	for i := range s.msgs {
		if s.msgs[i].State == Pending && s.msgs[i].LocalID == localID {
			s.msgs[i].State = Failed
			changed = true
			break
		}
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// Messages returns a snapshot of the ordered message set.
func (s *MessageStore) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// PendingCount returns how many provisional sends are still unresolved.
func (s *MessageStore) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.msgs {
		if s.msgs[i].State == Pending {
			n++
		}
	}
	return n
}

// findPendingMatch locates the pending provisional counterpart of a
// confirmed message, if any. Caller holds the lock.
func (s *MessageStore) findPendingMatch(m Message) int {
	for i := range s.msgs {
		p := &s.msgs[i]
		if p.State != Pending {
			continue
		}
		if p.SenderName != m.SenderName || p.Body != m.Body {
			continue
		}
		delta := m.CreatedAt.Sub(p.CreatedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= confirmGraceWindow {
			return i
		}
	}
	return -1
}

// indexOf returns the position of a message by key. Caller holds the lock.
func (s *MessageStore) indexOf(key string) int {
	for i := range s.msgs {
		if s.msgs[i].Key() == key {
			return i
		}
	}
	return -1
}

func (s *MessageStore) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}

// sortMessages orders by CreatedAt, ties broken by id, so every producer
// path converges on the same display order.
func sortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].Key() < msgs[j].Key()
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}
