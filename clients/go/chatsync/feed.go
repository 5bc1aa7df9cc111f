package chatsync

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// changeFeed turns the transport-level subscription for one channel into
// store and thread-index operations. It does no retrying of its own: closed
// and errored statuses are forwarded to the reconnection controller.
type changeFeed struct {
	channel  string
	store    *MessageStore
	threads  *ThreadIndex
	log      zerolog.Logger
	onStatus StatusHandler
}

func newChangeFeed(channelID string, store *MessageStore, threads *ThreadIndex, log zerolog.Logger, onStatus StatusHandler) *changeFeed {
	return &changeFeed{
		channel:  channelID,
		store:    store,
		threads:  threads,
		log:      log,
		onStatus: onStatus,
	}
}

// open establishes the logical insert+update subscription for the channel.
func (f *changeFeed) open(ctx context.Context, backend Backend) (Subscription, error) {
	sub, err := backend.SubscribeFeed(ctx, f.channel, f.handleEvent, f.handleStatus)
	if err != nil {
		return nil, fmt.Errorf("subscribe feed %s: %w", f.channel, err)
	}
	return sub, nil
}

// handleEvent routes one feed event. Transport-level filtering is not
// trusted: events claiming a different channel are dropped here.
func (f *changeFeed) handleEvent(ev FeedEvent) {
	if ev.Channel() != f.channel {
		f.log.Debug().Str("want", f.channel).Str("got", ev.Channel()).Msg("dropping event for wrong channel")
		return
	}

	switch e := ev.(type) {
	case InsertEvent:
		if e.Message.ParentID != "" {
			f.threads.addLive(e.Message)
			return
		}
		f.store.MergeIncoming(e.Message)
	case UpdateEvent:
		if e.Message.ParentID != "" {
			f.threads.applyLiveUpdate(e.Message)
			return
		}
		f.store.ApplyUpdate(e.Message)
	default:
		f.log.Warn().Str("channel", f.channel).Msg("unhandled feed event kind")
	}
}

func (f *changeFeed) handleStatus(s Status) {
	f.log.Debug().Str("channel", f.channel).Str("status", s.String()).Msg("feed status")
	if f.onStatus != nil {
		f.onStatus(s)
	}
}
