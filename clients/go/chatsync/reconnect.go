package chatsync

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// reconnectDelay is the fixed wait before re-establishing subscriptions
// after a failure, spacing out reconnect storms when a transport blip hits
// every channel at once.
const reconnectDelay = 5 * time.Second

// connState is the subscription supervision state for one channel.
type connState int

const (
	connIdle connState = iota
	connConnecting
	connSubscribed
	connReconnecting
)

func (s connState) String() string {
	switch s {
	case connIdle:
		return "idle"
	case connConnecting:
		return "connecting"
	case connSubscribed:
		return "subscribed"
	case connReconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// reconnector supervises the health of a channel's subscriptions (change
// feed and presence together). On failure it waits the fixed delay, tears
// everything down, and reopens. It restores liveness, not completeness: any
// messages missed during the gap are healed by the caller re-running the
// bulk fetch, which this controller deliberately does not do.
type reconnector struct {
	mu         sync.Mutex
	state      connState
	clock      Clock
	log        zerolog.Logger
	reopen     func() // teardown + resubscribe, provided by the channel
	timer      Timer
	lastManual time.Time
	disposed   bool
}

func newReconnector(clock Clock, log zerolog.Logger, reopen func()) *reconnector {
	return &reconnector{
		clock:  clock,
		log:    log,
		reopen: reopen,
	}
}

// onStatus consumes subscription status transitions from the feed.
func (r *reconnector) onStatus(s Status) {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}

	switch s {
	case StatusConnecting:
		if r.state == connIdle {
			r.state = connConnecting
		}
		r.mu.Unlock()
	case StatusSubscribed:
		prev := r.state
		r.state = connSubscribed
		r.mu.Unlock()
		if prev == connReconnecting {
			r.log.Info().Msg("subscription restored")
		}
	case StatusClosed, StatusErrored:
		if r.state == connReconnecting {
			// A reconnect is already scheduled or running.
			r.mu.Unlock()
			return
		}
		r.state = connReconnecting
		r.timer = r.clock.AfterFunc(reconnectDelay, r.fire)
		r.mu.Unlock()
		r.log.Warn().Str("status", s.String()).Dur("delay", reconnectDelay).Msg("subscription lost, reconnect scheduled")
	default:
		r.mu.Unlock()
	}
}

// Reconnect is the user-triggered retry. It is refused while an automatic
// reconnect is in flight, and rate-limited against itself so a retry button
// cannot be hammered.
func (r *reconnector) Reconnect() error {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return ErrDisposed
	}
	if r.state == connReconnecting {
		r.mu.Unlock()
		return ErrReconnectInFlight
	}
	now := r.clock.Now()
	if !r.lastManual.IsZero() && now.Sub(r.lastManual) < reconnectDelay {
		r.mu.Unlock()
		return ErrReconnectInFlight
	}
	r.lastManual = now
	r.state = connReconnecting
	r.mu.Unlock()

	r.log.Info().Msg("manual reconnect")
	r.fire()
	return nil
}

// fire runs the actual teardown+reopen. It double-checks disposal: the
// delay timer is not cancelled by garbage collection when the channel goes
// away, only by dispose.
func (r *reconnector) fire() {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	r.state = connConnecting
	r.mu.Unlock()

	r.reopen()
}

// current returns the supervision state, for tests and status surfaces.
func (r *reconnector) current() connState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// reset cancels any scheduled reconnect and returns to idle. Called when the
// channel being supervised is rebound: a delay timer armed for the old
// channel must not fire a teardown against the new one.
func (r *reconnector) reset() {
	r.mu.Lock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	if !r.disposed {
		r.state = connIdle
	}
	r.mu.Unlock()
}

func (r *reconnector) dispose() {
	r.mu.Lock()
	r.disposed = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.mu.Unlock()
}
