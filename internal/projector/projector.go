package projector

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/basekv/basekv/internal/barrier"
	"github.com/basekv/basekv/internal/docstore"
	"github.com/basekv/basekv/internal/registry"
	"github.com/basekv/basekv/internal/streamlog"
	"github.com/basekv/basekv/pkg/log"
)

// CheckpointSetting builds the settings/ record name for a stream's
// last-processed-sequence checkpoint.
func CheckpointSetting(stream string) string {
	return stream + "_last_processed_seq"
}

// OnMessageHook is invoked in projection order for every applied event,
// before OldData is attached. Exceptions are logged and swallowed.
type OnMessageHook func(ObservedEvent)

// Options configures a Projector.
type Options struct {
	Stream    string
	Client    streamlog.Client
	Store     *docstore.Store
	Barrier   *barrier.Barrier
	Registry  *registry.Registry
	OnMessage OnMessageHook
	Logger    log.Logger
}

// Projector is the replay/tail loop owned by one Base.
type Projector struct {
	opts Options

	readyOnce sync.Once
	readyCh   chan struct{}

	consumer streamlog.Consumer
	cancel   context.CancelFunc
	doneCh   chan struct{}

	faultErr atomic.Value // error
}

// New constructs a Projector. Call Start to begin replay/tail.
func New(opts Options) *Projector {
	return &Projector{
		opts:    opts,
		readyCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start reads the last checkpoint, determines the log's current tail
// sequence, and opens a pull consumer from checkpoint+1. If the
// checkpoint is already caught up to the tail it signals ready
// immediately; otherwise readiness fires once replay reaches the
// captured target sequence. It then runs the per-event projection loop
// in a background goroutine.
func (p *Projector) Start(ctx context.Context) error {
	checkpointName := CheckpointSetting(p.opts.Stream)
	checkpoint := readCheckpoint(p.opts.Store, checkpointName)

	targetSeq, err := p.opts.Client.LastSeq(ctx, p.opts.Stream)
	if err != nil {
		return err
	}

	if targetSeq == 0 || checkpoint >= targetSeq {
		p.signalReady()
	}

	consumer, err := p.opts.Client.PullConsumer(ctx, p.opts.Stream, checkpoint+1)
	if err != nil {
		return err
	}
	p.consumer = consumer

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	go p.run(runCtx, targetSeq, checkpointName)
	return nil
}

func readCheckpoint(store *docstore.Store, name string) uint64 {
	v, ok, err := store.GetSetting(name)
	if err != nil || !ok {
		return 0
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func (p *Projector) signalReady() {
	p.readyOnce.Do(func() { close(p.readyCh) })
}

// Ready is closed once the Projector has caught up to the sequence
// observed as "current" at Start time.
func (p *Projector) Ready() <-chan struct{} { return p.readyCh }

// Err returns the fault that aborted the loop, if any.
func (p *Projector) Err() error {
	if v := p.faultErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func (p *Projector) run(ctx context.Context, targetSeq uint64, checkpointName string) {
	defer close(p.doneCh)
	for {
		msg, err := p.consumer.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, streamlog.ErrNoMessages) {
				continue
			}
			p.fault(err)
			return
		}
		if err := p.applyEvent(msg, targetSeq, checkpointName); err != nil {
			p.fault(err)
			return
		}
	}
}

func (p *Projector) fault(err error) {
	p.faultErr.CompareAndSwap(nil, err)
	p.opts.Logger.Error("projector faulted", log.Err(err), log.Str("stream", p.opts.Stream))
	// A caller already blocked in Barrier.Wait for a sequence at or past
	// the fault point would otherwise hang until its own context is
	// canceled, since nothing else ever releases that sequence. Closing
	// here fails those waiters immediately; checkClosed handles callers
	// that arrive after the fault.
	p.opts.Barrier.Close()
}

// applyEvent decodes one log message, invokes the onMessage hook, applies
// the mutation to the local store together with the checkpoint advance,
// fans the event out to matching subscriptions, and then releases barrier
// waiters for its sequence.
//
// The checkpoint is a single stream-wide counter that only ever advances
// alongside a successfully committed event (see applyPut/applyDelete), so
// seq <= the checkpoint already on record means this exact message was
// already fully applied, most likely the consumer restarting from an
// unchanged checkpoint after a prior crash. Redelivery like that must
// resolve the same outstanding waiters again without reapplying the
// mutation, or every restart would double-count.
func (p *Projector) applyEvent(msg streamlog.Message, targetSeq uint64, checkpointName string) error {
	seq := msg.Seq()
	if seq <= readCheckpoint(p.opts.Store, checkpointName) {
		p.opts.Barrier.Release(seq)
		if seq >= targetSeq {
			p.signalReady()
		}
		return msg.Ack()
	}

	ev, err := DecodeEvent(msg.Data())
	if err != nil {
		return err
	}

	p.invokeOnMessage(ev.observed())

	prior, present, err := p.opts.Store.GetDoc(ev.ID)
	if err != nil {
		return err
	}
	if present {
		ev.OldData = prior
	} else {
		ev.OldData = nil
	}

	seqStr := strconv.FormatUint(msg.Seq(), 10)
	switch ev.Type {
	case EventPut:
		if err := p.applyPut(ev, msg.Time(), checkpointName, seqStr); err != nil {
			return err
		}
	case EventDelete:
		if err := p.applyDelete(ev, checkpointName, seqStr); err != nil {
			return err
		}
	}

	p.opts.Barrier.Release(msg.Seq())
	if msg.Seq() >= targetSeq {
		p.signalReady()
	}

	return msg.Ack()
}

// applyPut computes the next meta.Changes off the currently-committed meta
// and writes doc+meta+checkpoint in one batch (Store.ApplyPut). Committing
// the checkpoint alongside the increment means a crash before that batch
// commits leaves both the increment and the checkpoint untouched, so a
// resumed replay recomputes Changes from the same prevMeta instead of
// incrementing an already-incremented value.
func (p *Projector) applyPut(ev Event, logTime time.Time, checkpointName, checkpointSeq string) error {
	doc := make(map[string]interface{}, len(ev.Data)+1)
	for k, v := range ev.Data {
		doc[k] = v
	}
	doc["id"] = ev.ID

	prevMeta, hadMeta, err := p.opts.Store.GetMeta(ev.ID)
	if err != nil {
		return err
	}
	iso := logTime.UTC().Format(time.RFC3339Nano)
	var meta docstore.MetaData
	if hadMeta {
		meta = docstore.MetaData{DateCreated: prevMeta.DateCreated, DateModified: iso, Changes: prevMeta.Changes + 1}
	} else {
		meta = docstore.MetaData{DateCreated: iso, DateModified: iso, Changes: 1}
	}
	if err := p.opts.Store.ApplyPut(ev.ID, doc, meta, checkpointName, checkpointSeq); err != nil {
		return err
	}

	p.opts.Registry.NotifyPut(ev.ID, doc, meta)
	return nil
}

// applyDelete removes doc+meta and advances the checkpoint in one batch
// (Store.ApplyDelete), the same all-or-nothing reasoning as applyPut.
func (p *Projector) applyDelete(ev Event, checkpointName, checkpointSeq string) error {
	if err := p.opts.Store.ApplyDelete(ev.ID, checkpointName, checkpointSeq); err != nil {
		return err
	}
	p.opts.Registry.NotifyDelete(ev.ID, ev.OldData)
	return nil
}

func (p *Projector) invokeOnMessage(observed ObservedEvent) {
	if p.opts.OnMessage == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.opts.Logger.Warn("onMessage hook panicked", log.Any("recover", r))
		}
	}()
	p.opts.OnMessage(observed)
}

// Close halts the loop: cancels the run context, waits for the current
// event (if any) to finish applying, fails outstanding barrier waiters,
// and closes the consumer handle so the log does not retain per-consumer
// state.
func (p *Projector) Close() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.doneCh
	p.opts.Barrier.Close()
	if p.consumer != nil {
		p.consumer.Close()
	}
}
