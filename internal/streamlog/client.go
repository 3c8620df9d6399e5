package streamlog

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested sequence does not exist.
var ErrNotFound = errors.New("streamlog: not found")

// ErrNoMessages is returned by Consumer.Next when the caller should back
// off and retry; it is not a fatal condition.
var ErrNoMessages = errors.New("streamlog: no messages available")

// Client is the external log's full surface: stream lifecycle plus publish.
// Base.open()/deleteStream() use it directly; Projector uses PullConsumer.
type Client interface {
	EnsureStream(ctx context.Context, stream string, subjectFilter string) error
	Publish(ctx context.Context, stream, subject string, payload []byte) (seq uint64, err error)
	LastSeq(ctx context.Context, stream string) (uint64, error)
	PullConsumer(ctx context.Context, stream string, startSeq uint64) (Consumer, error)
	// PurgeSubject deletes every message on subject except the keepLatest
	// most recent ones, returning how many were removed.
	PurgeSubject(ctx context.Context, stream, subject string, keepLatest uint64) (purged uint64, err error)
	DeleteStream(ctx context.Context, stream string) error
	Close() error
}

// Consumer pulls messages from a stream starting at a fixed sequence.
type Consumer interface {
	// Next blocks for the next message with seq >= the consumer's cursor.
	// MemLog waits until one is published or ctx is done (returning
	// ctx.Err()); NatsLog waits up to its own fetch window and returns
	// ErrNoMessages when nothing arrived in it.
	Next(ctx context.Context) (Message, error)
	Close() error
}

// Message is a single delivered log entry.
type Message interface {
	Seq() uint64
	Subject() string
	Data() []byte
	Time() time.Time
	Ack() error
}
