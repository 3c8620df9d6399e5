package manager

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/basekv/basekv/internal/base"
	"github.com/basekv/basekv/internal/config"
	"github.com/basekv/basekv/internal/errs"
	"github.com/basekv/basekv/internal/projector"
	"github.com/basekv/basekv/internal/streamlog"
	"github.com/basekv/basekv/pkg/log"
)

// LifecycleEvent names a stream open/close transition, published to
// Options.OnLifecycleEvent.
type LifecycleEvent struct {
	Kind   string // "stream:opened" or "stream:closed"
	Stream string
}

// Options configures a Manager: data directory, log dial settings, idle
// keep-alive window, and cleanup sweep interval.
type Options struct {
	Config config.Config

	// Client, when set, is used for every Base instead of dialing NATS:
	// the embedded/test path (a shared streamlog.MemLog across streams).
	Client streamlog.Client

	OnMessage        projector.OnMessageHook
	OnLifecycleEvent func(LifecycleEvent)
	Logger           log.Logger
}

// Manager owns zero or more open Bases, keyed by stream name.
type Manager struct {
	opts   Options
	logger log.Logger

	mu     sync.Mutex
	bases  map[string]*base.Base
	group  singleflight.Group
	closed bool

	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
}

// New constructs a Manager and starts its idle-eviction sweep goroutine.
func New(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = log.NewLogger()
	}
	logger := opts.Logger.WithComponent("manager")

	m := &Manager{
		opts:      opts,
		logger:    logger,
		bases:     make(map[string]*base.Base),
		sweepDone: make(chan struct{}),
	}

	interval := time.Duration(opts.Config.CleanupIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.sweepCancel = cancel
	go m.sweepLoop(ctx, interval)

	return m
}

// Get returns the open Base for stream, opening it on first use. Callers
// racing on the same stream name share one open via singleflight, so only
// one Base and one underlying Projector startup exist per stream.
func (m *Manager) Get(ctx context.Context, stream string) (*base.Base, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errs.ErrInstanceClosed
	}
	if b, ok := m.bases[stream]; ok {
		m.mu.Unlock()
		return b, nil
	}
	m.mu.Unlock()

	v, err, _ := m.group.Do(stream, func() (interface{}, error) {
		m.mu.Lock()
		if b, ok := m.bases[stream]; ok {
			m.mu.Unlock()
			return b, nil
		}
		m.mu.Unlock()

		// This goroutine is the one that actually opens stream (every
		// concurrent Get for the same name shares this call via
		// singleflight), so the in-flight future is inserted right here.
		// Emit before base.Open even starts, not once it resolves, so a
		// listener sees stream:opened at open-initiation rather than
		// after the whole open+catch-up latency.
		m.emit(LifecycleEvent{Kind: "stream:opened", Stream: stream})

		b, err := base.Open(ctx, base.Options{
			StreamName:      stream,
			StatsStreamName: m.opts.Config.StatsStreamPrefix + "." + stream,
			DBPath:          filepath.Join(m.opts.Config.DBPath, stream),
			Client:          m.opts.Client,
			NatsURL:         m.opts.Config.Nats.URL,
			NatsTimeout:     time.Duration(m.opts.Config.Nats.ConnectTimeout) * time.Millisecond,
			OnMessage:       m.opts.OnMessage,
			Logger:          m.logger,
		})
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.bases[stream] = b
		m.mu.Unlock()
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*base.Base), nil
}

func (m *Manager) emit(ev LifecycleEvent) {
	if m.opts.OnLifecycleEvent == nil {
		return
	}
	m.opts.OnLifecycleEvent(ev)
}

// CloseStream closes and forgets the Base for stream, if open.
func (m *Manager) CloseStream(stream string) error {
	m.mu.Lock()
	b, ok := m.bases[stream]
	if ok {
		delete(m.bases, stream)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	err := b.Close()
	m.emit(LifecycleEvent{Kind: "stream:closed", Stream: stream})
	return err
}

func (m *Manager) sweepLoop(ctx context.Context, interval time.Duration) {
	defer close(m.sweepDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepIdle()
		}
	}
}

func (m *Manager) sweepIdle() {
	keepAlive := time.Duration(m.opts.Config.KeepAliveSeconds) * time.Second
	if keepAlive <= 0 {
		return
	}
	now := time.Now()

	m.mu.Lock()
	var idle []string
	for stream, b := range m.bases {
		if b.ActiveSubscriptions() > 0 {
			continue
		}
		if now.Sub(b.LastAccessed()) > keepAlive {
			idle = append(idle, stream)
		}
	}
	m.mu.Unlock()

	for _, stream := range idle {
		if err := m.CloseStream(stream); err != nil {
			m.logger.Warn("idle sweep close failed", log.Err(err), log.Str("stream", stream))
		}
	}
}

// CloseAll closes every open Base and stops the idle sweep. The Manager is
// unusable afterward.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	bases := m.bases
	m.bases = make(map[string]*base.Base)
	m.mu.Unlock()

	m.sweepCancel()
	<-m.sweepDone

	var firstErr error
	for stream, b := range bases {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", stream, err)
		}
	}
	return firstErr
}
