package chatsync

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ThreadBucket is the lazily materialized set of replies to one parent
// message. Count is maintained even while Replies is unloaded: a count query
// seeds it, and live inserts keep it moving whether or not the bucket has
// been expanded.
type ThreadBucket struct {
	ParentID string
	Replies  []Message
	Count    int

	seen     map[string]struct{}
	expanded bool
	counted  bool
}

// ThreadIndex maintains per-parent reply buckets for one channel, fed by the
// same change feed as the main store.
type ThreadIndex struct {
	mu       sync.Mutex
	channel  string
	backend  Backend
	log      zerolog.Logger
	buckets  map[string]*ThreadBucket
	onChange func()
}

// NewThreadIndex creates an empty index for one channel.
func NewThreadIndex(channelID string, backend Backend, log zerolog.Logger, onChange func()) *ThreadIndex {
	return &ThreadIndex{
		channel:  channelID,
		backend:  backend,
		log:      log,
		buckets:  make(map[string]*ThreadBucket),
		onChange: onChange,
	}
}

// Count returns the known reply count for a parent, seeding it with a count
// query the first time the parent is asked about. The count is independent
// of whether the bucket has been expanded.
func (t *ThreadIndex) Count(ctx context.Context, parentID string) (int, error) {
	t.mu.Lock()
	b := t.bucket(parentID)
	if b.counted {
		n := b.Count
		t.mu.Unlock()
		return n, nil
	}
	t.mu.Unlock()

	n, err := t.backend.CountReplies(ctx, t.channel, parentID)
	if err != nil {
		return 0, fmt.Errorf("count replies for %s: %w", parentID, err)
	}

	t.mu.Lock()
	b = t.bucket(parentID)
	if !b.counted {
		b.counted = true
		// Live inserts may have raced the count query; keep the larger.
		if n > b.Count {
			b.Count = n
		}
	}
	n = b.Count
	t.mu.Unlock()
	return n, nil
}

// Expand fetches the existing replies for a parent once. Subsequent live
// inserts append directly; a second Expand returns the cached bucket.
func (t *ThreadIndex) Expand(ctx context.Context, parentID string) ([]Message, error) {
	t.mu.Lock()
	b := t.bucket(parentID)
	if b.expanded {
		out := snapshotReplies(b)
		t.mu.Unlock()
		return out, nil
	}
	t.mu.Unlock()

	replies, err := t.backend.FetchReplies(ctx, t.channel, parentID)
	if err != nil {
		return nil, fmt.Errorf("fetch replies for %s: %w", parentID, err)
	}

	t.mu.Lock()
	b = t.bucket(parentID)
	if !b.expanded {
		// Replies counted while the bucket was collapsed have no body yet;
		// the fetch supplies it. seen keeps their later redeliveries from
		// recounting, so membership here is checked against Replies itself.
		for _, r := range replies {
			if containsReply(b.Replies, r.ID) {
				continue
			}
			b.seen[r.ID] = struct{}{}
			b.Replies = append(b.Replies, r)
		}
		sortMessages(b.Replies)
		b.expanded = true
		b.counted = true
		if len(b.Replies) > b.Count {
			b.Count = len(b.Replies)
		}
	}
	out := snapshotReplies(b)
	t.mu.Unlock()
	t.notify()
	return out, nil
}

// Collapse is a view concern, not a cache one: the cached replies are kept
// and live inserts continue to append.
func (t *ThreadIndex) Collapse(parentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	// Nothing evicted. The bucket stays warm for the next expansion.
	_ = t.buckets[parentID]
}

// Reply persists a message under a parent. There is no optimistic path for
// replies: the shared change feed delivers the confirmed copy and addLive
// performs the one and only bucket update. Slightly higher latency, one
// merge code path.
func (t *ThreadIndex) Reply(ctx context.Context, parentID, sender, avatar, body string) error {
	_, err := t.backend.InsertMessage(ctx, Outgoing{
		ChannelID:    t.channel,
		ParentID:     parentID,
		SenderName:   sender,
		SenderAvatar: avatar,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

// Replies returns a snapshot of the loaded replies for a parent. It is
// empty until Expand has run.
func (t *ThreadIndex) Replies(parentID string) []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.buckets[parentID]
	if !ok {
		return nil
	}
	return snapshotReplies(b)
}

// addLive folds a feed insert into the index: the count always advances,
// and expanded buckets also gain the message. The seen set makes duplicate
// delivery a no-op even for buckets that were never expanded.
func (t *ThreadIndex) addLive(m Message) {
	t.mu.Lock()
	b := t.bucket(m.ParentID)
	if _, dup := b.seen[m.ID]; dup {
		t.mu.Unlock()
		return
	}
	b.seen[m.ID] = struct{}{}
	b.Count++
	if b.expanded {
		b.Replies = append(b.Replies, m)
		sortMessages(b.Replies)
	}
	t.mu.Unlock()
	t.notify()
}

// applyLiveUpdate replaces mutable fields of a loaded reply. Updates for
// unloaded buckets are dropped, same as the store's update-before-insert
// policy.
func (t *ThreadIndex) applyLiveUpdate(m Message) {
	t.mu.Lock()
	b, ok := t.buckets[m.ParentID]
	if !ok {
		t.mu.Unlock()
		return
	}
	changed := false
	for i := range b.Replies {
		if b.Replies[i].ID == m.ID {
			b.Replies[i].Body = m.Body
			b.Replies[i].Reactions = m.Reactions
			changed = true
			break
		}
	}
	t.mu.Unlock()
	if changed {
		t.notify()
	}
}

// bucket returns the bucket for a parent, creating it when first touched.
// Caller holds the lock.
func (t *ThreadIndex) bucket(parentID string) *ThreadBucket {
	b, ok := t.buckets[parentID]
	if !ok {
		b = &ThreadBucket{ParentID: parentID, seen: make(map[string]struct{})}
		t.buckets[parentID] = b
	}
	return b
}

func (t *ThreadIndex) notify() {
	if t.onChange != nil {
		t.onChange()
	}
}

func containsReply(replies []Message, id string) bool {
	for i := range replies {
		if replies[i].ID == id {
			return true
		}
	}
	return false
}

func snapshotReplies(b *ThreadBucket) []Message {
	out := make([]Message, len(b.Replies))
	copy(out, b.Replies)
	return out
}
