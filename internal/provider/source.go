package provider

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alexjbarnes/storefront/internal/logging"
	"golang.org/x/sync/singleflight"
)

// Source is the subscribable session value for one credential. It starts
// Pending. Refresh fetches from the provider and publishes Pending then
// the result; concurrent Refresh calls share one fetch. Delivery to
// subscribers is serialised and in subscription order.
type Source struct {
	fetcher    Fetcher
	credential string
	logger     *slog.Logger

	group singleflight.Group

	// deliver is held for the whole of a publish so subscribers see
	// values in the order they were published.
	deliver sync.Mutex

	mu      sync.Mutex
	current Session
	subs    []subscriber
	nextID  uint64
}

type subscriber struct {
	id uint64
	fn func(Session)
}

// NewSource creates a Source for credential. A nil logger discards output.
func NewSource(fetcher Fetcher, credential string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = logging.Discard()
	}

	return &Source{
		fetcher:    fetcher,
		credential: credential,
		logger:     logger,
		current:    Pending(),
	}
}

// Credential returns the provider credential this source fetches with.
func (s *Source) Credential() string {
	return s.credential
}

// Current returns the last published session.
func (s *Source) Current() Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current
}

// Subscribe registers fn for future publishes. The returned function
// removes it and is safe to call more than once.
func (s *Source) Subscribe(fn func(Session)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()

			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Refresh fetches the session and publishes it. A fetch error is
// published as Failed rather than returned.
func (s *Source) Refresh(ctx context.Context) Session {
	v, _, _ := s.group.Do("session", func() (any, error) {
		s.Publish(Pending())

		sess, err := s.fetcher.FetchSession(ctx, s.credential)
		if err != nil {
			s.logger.Warn("session fetch failed",
				slog.String("error", err.Error()),
				slog.Bool("transient", IsTransient(err)),
			)

			sess = Failed(err)
		}

		s.Publish(sess)

		return sess, nil
	})

	return v.(Session)
}

// Publish sets the current session and delivers it to every subscriber.
// Subscribers must not call Publish or Refresh synchronously.
func (s *Source) Publish(sess Session) {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	s.current = sess
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(sess)
	}
}
