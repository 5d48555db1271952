// Package stream turns upstream migration feeds into domain.MigrationEvent values.
package stream

import (
	"context"
	"fmt"
	"sync"

	"migration-sentinel/internal/domain"
)

// Source produces migration events until ctx is done, then closes the channel.
type Source interface {
	Subscribe(ctx context.Context) (<-chan domain.MigrationEvent, error)
}

// Merge subscribes to every source and fans their events into one channel.
// It fails if any subscription fails. The merged channel closes once every
// source channel has closed.
func Merge(ctx context.Context, sources ...Source) (<-chan domain.MigrationEvent, error) {
	ctx, cancel := context.WithCancel(ctx)
	chans := make([]<-chan domain.MigrationEvent, 0, len(sources))
	for i, src := range sources {
		ch, err := src.Subscribe(ctx)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("subscribe source %d: %w", i, err)
		}
		chans = append(chans, ch)
	}

	out := make(chan domain.MigrationEvent)
	var wg sync.WaitGroup
	for _, ch := range chans {
		wg.Add(1)
		go func(ch <-chan domain.MigrationEvent) {
			defer wg.Done()
			for ev := range ch {
				select {
				case out <- ev:
				case <-ctx.Done():
				}
			}
		}(ch)
	}
	go func() {
		wg.Wait()
		cancel()
		close(out)
	}()
	return out, nil
}

// firstString returns the first non-empty string value among keys.
func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// firstValue returns the first non-nil value among keys.
func firstValue(m map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}
