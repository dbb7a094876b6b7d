package visit

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Feed fans out queue snapshots to live station subscriptions. Every time a
// mutation is published, each subscription receives the full current
// matching set of its view, never a diff: subscribers re-render from a
// complete snapshot, which keeps their local state consistent with the
// ledger without client-side merge logic.
type Feed struct {
	mu    sync.Mutex
	repo  Repository
	views *Views
	subs  map[*Subscription]struct{}
	log   zerolog.Logger
}

func NewFeed(repo Repository, views *Views, log zerolog.Logger) *Feed {
	return &Feed{
		repo:  repo,
		views: views,
		subs:  make(map[*Subscription]struct{}),
		log:   log,
	}
}

// Subscription is one station's live handle on its queue. Close releases the
// registration and is safe to call from any exit path, any number of times.
type Subscription struct {
	Station Station

	view StationView
	ch   chan []*Visit
	feed *Feed
	once sync.Once
}

// Updates delivers the full ordered matching set after every published
// mutation. Only the latest snapshot is retained for a slow receiver; older
// ones are superseded, never queued.
func (s *Subscription) Updates() <-chan []*Visit {
	return s.ch
}

// Close releases the subscription. Idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.feed.mu.Lock()
		delete(s.feed.subs, s)
		s.feed.mu.Unlock()
		close(s.ch)
	})
}

// Subscribe registers a live view for the station and returns the handle
// together with the current full matching set.
func (f *Feed) Subscribe(ctx context.Context, st Station) (*Subscription, []*Visit, error) {
	view, err := f.views.ForStation(st)
	if err != nil {
		return nil, nil, err
	}

	visits, err := f.repo.List(ctx, Filter{})
	if err != nil {
		return nil, nil, err
	}

	sub := &Subscription{
		Station: st,
		view:    view,
		ch:      make(chan []*Visit, 1),
		feed:    f,
	}

	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	return sub, view.Apply(visits), nil
}

// SubscriberCount reports the number of live subscriptions.
func (f *Feed) SubscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Publish recomputes every live subscription's matching set and delivers it.
// A subscriber that has not drained its previous snapshot gets it replaced
// by the new one, so a slow station can never block the write path or
// another station's delivery. Cross-station delivery order is unspecified.
func (f *Feed) Publish(ctx context.Context) {
	visits, err := f.repo.List(ctx, Filter{})
	if err != nil {
		// Subscribers self-heal on the next successful snapshot; nothing to
		// do here but record the miss.
		f.log.Warn().Err(err).Msg("queue snapshot publish skipped")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs {
		snapshot := sub.view.Apply(visits)
		select {
		case sub.ch <- snapshot:
		default:
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- snapshot
		}
	}
}
