package streamlog

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NatsLog adapts a NATS JetStream connection to Client, used in production
// deployments where the external log is a real JetStream stream rather
// than the embedded MemLog.
type NatsLog struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// DialNats connects to url and returns a NatsLog ready to use.
func DialNats(ctx context.Context, url string, connectTimeout time.Duration) (*NatsLog, error) {
	opts := []nats.Option{nats.Name("basekv")}
	if connectTimeout > 0 {
		opts = append(opts, nats.Timeout(connectTimeout))
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("streamlog: connect nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("streamlog: init jetstream: %w", err)
	}
	return &NatsLog{nc: nc, js: js}, nil
}

func (n *NatsLog) EnsureStream(ctx context.Context, stream string, subjectFilter string) error {
	_, err := n.js.Stream(ctx, stream)
	if err == nil {
		return nil
	}
	_, err = n.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:     stream,
		Subjects: []string{subjectFilter},
		Storage:  jetstream.FileStorage,
	})
	return err
}

func (n *NatsLog) Publish(ctx context.Context, stream, subject string, payload []byte) (uint64, error) {
	ack, err := n.js.Publish(ctx, subject, payload)
	if err != nil {
		return 0, err
	}
	return ack.Sequence, nil
}

func (n *NatsLog) LastSeq(ctx context.Context, stream string) (uint64, error) {
	st, err := n.js.Stream(ctx, stream)
	if err != nil {
		return 0, err
	}
	info, err := st.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.State.LastSeq, nil
}

func (n *NatsLog) PullConsumer(ctx context.Context, stream string, startSeq uint64) (Consumer, error) {
	st, err := n.js.Stream(ctx, stream)
	if err != nil {
		return nil, err
	}
	if startSeq == 0 {
		startSeq = 1
	}
	cons, err := st.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		DeliverPolicy: jetstream.DeliverByStartSequencePolicy,
		OptStartSeq:   startSeq,
		AckPolicy:     jetstream.AckNonePolicy,
	})
	if err != nil {
		return nil, err
	}
	return &natsConsumer{js: n.js, stream: stream, name: cons.CachedInfo().Name, consumer: cons}, nil
}

func (n *NatsLog) PurgeSubject(ctx context.Context, stream, subject string, keepLatest uint64) (uint64, error) {
	st, err := n.js.Stream(ctx, stream)
	if err != nil {
		return 0, err
	}
	before, err := st.Info(ctx)
	if err != nil {
		return 0, err
	}
	if err := st.Purge(ctx, jetstream.WithPurgeSubject(subject), jetstream.WithPurgeKeep(keepLatest)); err != nil {
		return 0, err
	}
	after, err := st.Info(ctx)
	if err != nil {
		return 0, nil
	}
	return before.State.Msgs - after.State.Msgs, nil
}

func (n *NatsLog) DeleteStream(ctx context.Context, stream string) error {
	return n.js.DeleteStream(ctx, stream)
}

func (n *NatsLog) Close() error {
	n.nc.Close()
	return nil
}

type natsConsumer struct {
	js       jetstream.JetStream
	stream   string
	name     string
	consumer jetstream.Consumer
}

func (c *natsConsumer) Next(ctx context.Context) (Message, error) {
	msg, err := c.consumer.Next(jetstream.FetchMaxWait(5 * time.Second))
	if err != nil {
		if err == nats.ErrTimeout || err == jetstream.ErrNoMessages {
			return nil, ErrNoMessages
		}
		return nil, err
	}
	meta, err := msg.Metadata()
	if err != nil {
		return nil, err
	}
	return &natsMessage{msg: msg, seq: meta.Sequence.Stream, ts: meta.Timestamp}, nil
}

// Close deletes the ephemeral consumer server-side so the stream does not
// retain per-consumer state after this Projector stops pulling from it.
func (c *natsConsumer) Close() error {
	if c.js == nil || c.name == "" {
		return nil
	}
	return c.js.DeleteConsumer(context.Background(), c.stream, c.name)
}

type natsMessage struct {
	msg jetstream.Msg
	seq uint64
	ts  time.Time
}

func (m *natsMessage) Seq() uint64     { return m.seq }
func (m *natsMessage) Subject() string { return m.msg.Subject() }
func (m *natsMessage) Data() []byte    { return m.msg.Data() }
func (m *natsMessage) Time() time.Time { return m.ts }
func (m *natsMessage) Ack() error      { return m.msg.Ack() }
