package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	goredis "github.com/go-redis/redis/v8"

	"regime-seeker/internal/model"
)

// AllRegimeChannels matches every instrument's snapshot channel.
const AllRegimeChannels = "pub:regime:*"

// ReadLatest loads the latest snapshot for inst. A missing or expired key
// returns nil, nil.
func (p *Publisher) ReadLatest(ctx context.Context, inst model.Instrument) (*model.RegimeSnapshot, error) {
	key := (&model.RegimeSnapshot{Instrument: inst}).LatestKey()
	data, err := p.client.Get(ctx, key).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var snap model.RegimeSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", key, err)
	}
	return &snap, nil
}

// Seed copies the latest stored snapshot of each instrument into dst, so a
// serve-only gateway has values before the first PubSub message. Instruments
// without a live key are skipped. It returns how many were seeded.
func (p *Publisher) Seed(ctx context.Context, insts []model.Instrument, dst model.SnapshotPublisher) (int, error) {
	seeded := 0
	for _, inst := range insts {
		snap, err := p.ReadLatest(ctx, inst)
		if err != nil {
			return seeded, err
		}
		if snap == nil {
			continue
		}
		if err := dst.PublishSnapshot(ctx, *snap); err != nil {
			return seeded, fmt.Errorf("seed %s: %w", inst.Key(), err)
		}
		seeded++
	}
	return seeded, nil
}

// Subscribe pattern-subscribes to snapshot channels and feeds decoded
// snapshots into out. Malformed payloads are skipped. Blocks until ctx is
// cancelled.
func (p *Publisher) Subscribe(ctx context.Context, pattern string, out chan<- model.RegimeSnapshot) error {
	if pattern == "" {
		pattern = AllRegimeChannels
	}
	pubsub := p.client.PSubscribe(ctx, pattern)
	defer pubsub.Close()

	// Wait for confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis psubscribe %s: %w", pattern, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var snap model.RegimeSnapshot
			if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
				log.Printf("[redis] bad payload on %s: %v", msg.Channel, err)
				continue
			}
			select {
			case out <- snap:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
