package visit

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// SnapshotPublisher pushes a station's full queue to whatever transport
// carries it to the terminals. The snapshot is always the complete ordered
// queue, never a diff, so receivers replace their local state wholesale.
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, station Station, visits []*Visit) error
}

// broadcastStations are the views pushed out live. Dashboard included: the
// waiting-room display is just another subscriber.
var broadcastStations = []Station{
	StationReception,
	StationConsulting,
	StationLab,
	StationTreatment,
	StationDashboard,
}

// Broadcaster subscribes to every station feed and republishes each snapshot
// to the transport. One goroutine per station; all stop when the context is
// cancelled.
type Broadcaster struct {
	svc       *Service
	publisher SnapshotPublisher
	log       zerolog.Logger
}

func NewBroadcaster(svc *Service, publisher SnapshotPublisher, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{svc: svc, publisher: publisher, log: log}
}

// Run blocks until ctx is cancelled. The initial snapshot each subscription
// returns is published immediately so freshly started terminals render
// without waiting for the first change.
func (b *Broadcaster) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for _, st := range broadcastStations {
		sub, initial, err := b.svc.Subscribe(ctx, st)
		if err != nil {
			return err
		}

		b.send(ctx, st, initial)

		wg.Add(1)
		go func(st Station, sub *Subscription) {
			defer wg.Done()
			defer sub.Close()

			for {
				select {
				case <-ctx.Done():
					return
				case snapshot, ok := <-sub.Updates():
					if !ok {
						return
					}
					b.send(ctx, st, snapshot)
				}
			}
		}(st, sub)
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (b *Broadcaster) send(ctx context.Context, st Station, visits []*Visit) {
	if visits == nil {
		visits = []*Visit{}
	}
	if err := b.publisher.PublishSnapshot(ctx, st, visits); err != nil {
		b.log.Warn().Err(err).Str("station", string(st)).Msg("snapshot publish failed")
	}
}
