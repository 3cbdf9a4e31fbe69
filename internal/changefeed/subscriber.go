package changefeed

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Subscription is one logical feed channel for one session. Decoded events are
// delivered on Events; a transport interruption is reported on Interruptions,
// after which the session must re-fetch a snapshot because missed events are
// not replayed.
type Subscription struct {
	SessionID string
	Channel   string

	Events        chan *Event
	Interruptions chan error

	pubsub    *redis.PubSub
	cancel    context.CancelFunc
	closeOnce sync.Once
	logger    *zap.Logger
}

// Close stops the receive loop and releases the underlying pubsub. Safe to
// call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		if err := s.pubsub.Close(); err != nil {
			s.logger.Debug("pubsub close", zap.String("channel", s.Channel), zap.Error(err))
		}
	})
}

func (s *Subscription) run(ctx context.Context) {
	defer close(s.Events)
	defer close(s.Interruptions)

	for {
		msg, err := s.pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Transient transport failure. go-redis will reconnect under the
			// hood, but anything published in the gap is gone; the session has
			// to re-sync from a snapshot.
			s.logger.Warn("feed receive interrupted",
				zap.String("channel", s.Channel), zap.Error(err))
			select {
			case s.Interruptions <- err:
			case <-ctx.Done():
				return
			}
			continue
		}

		evt, err := Decode([]byte(msg.Payload))
		if err != nil {
			// Malformed payloads are dropped here; the merged view is never
			// touched by an event that failed validation.
			s.logger.Warn("dropping malformed feed event",
				zap.String("channel", s.Channel), zap.Error(err))
			continue
		}

		select {
		case s.Events <- evt:
		case <-ctx.Done():
			return
		}
	}
}

// Registry owns every live subscription, keyed by (session, channel). A
// session re-subscribing to a channel it already holds gets the existing
// subscription back; closing a session tears down all of its channels.
type Registry struct {
	redisClient *redis.Client
	logger      *zap.Logger

	mu       sync.Mutex
	sessions map[string]map[string]*Subscription
}

func NewRegistry(redisClient *redis.Client, logger *zap.Logger) *Registry {
	return &Registry{
		redisClient: redisClient,
		logger:      logger,
		sessions:    make(map[string]map[string]*Subscription),
	}
}

// Subscribe returns the subscription for (sessionID, channel), creating it if
// missing. The bool reports whether a new subscription was created.
func (r *Registry) Subscribe(ctx context.Context, sessionID, channel string) (*Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if subs, ok := r.sessions[sessionID]; ok {
		if sub, ok := subs[channel]; ok {
			return sub, false
		}
	} else {
		r.sessions[sessionID] = make(map[string]*Subscription)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &Subscription{
		SessionID:     sessionID,
		Channel:       channel,
		Events:        make(chan *Event, 64),
		Interruptions: make(chan error, 1),
		pubsub:        r.redisClient.Subscribe(ctx, channel),
		cancel:        cancel,
		logger:        r.logger,
	}

	go sub.run(runCtx)
	r.sessions[sessionID][channel] = sub

	return sub, true
}

// Unsubscribe removes one channel from a session. Idempotent.
func (r *Registry) Unsubscribe(sessionID, channel string) {
	r.mu.Lock()
	sub := r.sessions[sessionID][channel]
	delete(r.sessions[sessionID], channel)
	r.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
}

// CloseSession tears down every subscription held by a session. Idempotent;
// no channel keeps firing after the session is gone.
func (r *Registry) CloseSession(sessionID string) {
	r.mu.Lock()
	subs := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

// SessionChannels reports the channels a session currently holds.
func (r *Registry) SessionChannels(sessionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	channels := make([]string, 0, len(r.sessions[sessionID]))
	for channel := range r.sessions[sessionID] {
		channels = append(channels, channel)
	}
	return channels
}
