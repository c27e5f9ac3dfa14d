// Package bus fans session updates out to independent sinks.
package bus

import (
	"context"
	"log/slog"
	"sync"

	"trendsignal/internal/model"
)

// FanOut broadcasts updates from a single input channel to N output channels.
// If an output channel is full, the update is dropped for that consumer to
// prevent a slow consumer from blocking the ingestion loop.
type FanOut struct {
	mu      sync.RWMutex
	outputs []subscriber
	bufSize int
	log     *slog.Logger

	// OnDrop is called when an update is dropped for a subscriber.
	OnDrop func(name string)
}

type subscriber struct {
	name string
	ch   chan model.Update
}

// New creates a FanOut with the given buffer size for output channels.
func New(outputBufferSize int, log *slog.Logger) *FanOut {
	return &FanOut{
		bufSize: outputBufferSize,
		log:     log.With("component", "bus"),
	}
}

// Subscribe creates and returns a new named output channel. Subscribe
// before Run starts.
func (f *FanOut) Subscribe(name string) <-chan model.Update {
	ch := make(chan model.Update, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, subscriber{name: name, ch: ch})
	f.mu.Unlock()
	return ch
}

// Run reads from the input channel and fans out to all subscribers.
// Blocks until ctx is cancelled or input is closed; outputs are closed on
// return.
func (f *FanOut) Run(ctx context.Context, input <-chan model.Update) {
	defer func() {
		f.mu.RLock()
		for _, s := range f.outputs {
			close(s.ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-input:
			if !ok {
				return
			}
			f.mu.RLock()
			for _, s := range f.outputs {
				select {
				case s.ch <- u:
				default:
					if f.OnDrop != nil {
						f.OnDrop(s.name)
					}
					f.log.Warn("subscriber full, dropping update", "subscriber", s.name, "key", u.Key())
				}
			}
			f.mu.RUnlock()
		}
	}
}

// ChannelStat reports the saturation of one subscriber channel.
type ChannelStat struct {
	Name string
	Len  int
	Cap  int
}

func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, s := range f.outputs {
		stats[i] = ChannelStat{Name: s.name, Len: len(s.ch), Cap: cap(s.ch)}
	}
	return stats
}
