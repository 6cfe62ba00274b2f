// Package stream emits operation results as an ordered sequence of chunks:
// zero or more data chunks followed by exactly one terminal (done or error).
// Collection results are split into batches so delivery starts before the
// whole collection is serialized.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"reflect"

	"github.com/hazyhaar/pixivmcp/dispatch"
)

// Type discriminates chunk roles.
type Type string

const (
	TypeData  Type = "data"
	TypeDone  Type = "done"
	TypeError Type = "error"
)

// Chunk is one element of a response stream. Seq starts at 0 and increases
// by 1 per chunk within a request; no ordering holds across requests.
type Chunk struct {
	Seq     int               `json:"seq"`
	Type    Type              `json:"type"`
	Payload any               `json:"payload,omitempty"`
	Error   *dispatch.Failure `json:"error,omitempty"`
}

// Sink delivers chunks to the client. A Send error means the client is
// gone; the emitter stops silently.
type Sink interface {
	Send(Chunk) error
}

// DefaultBatchSize is how many collection items one data chunk carries.
const DefaultBatchSize = 5

// Emitter converts results and failures into chunk sequences.
type Emitter struct {
	batchSize int
	logger    *slog.Logger
}

// Option customises Emitter construction.
type Option func(*Emitter)

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(e *Emitter) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Emitter) { e.logger = l }
}

// NewEmitter builds an Emitter.
func NewEmitter(opts ...Option) *Emitter {
	e := &Emitter{batchSize: DefaultBatchSize, logger: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Emit writes the chunk sequence for one completed operation. A failed
// operation (failure != nil) produces exactly one error chunk and no data.
// Collection results produce one data chunk per batch; everything else
// produces a single data chunk. A healthy stream always ends with done.
//
// A send failure or context cancellation stops emission without error: a
// disconnected client is not a failure and triggers no retry.
func (e *Emitter) Emit(ctx context.Context, sink Sink, result any, failure *dispatch.Failure) {
	seq := 0
	send := func(c Chunk) bool {
		if ctx.Err() != nil {
			e.logger.DebugContext(ctx, "stream: context done, stopping emission")
			return false
		}
		c.Seq = seq
		if err := sink.Send(c); err != nil {
			e.logger.DebugContext(ctx, "stream: client gone, stopping emission", "error", err)
			return false
		}
		seq++
		return true
	}

	if failure != nil {
		send(Chunk{Type: TypeError, Error: failure})
		return
	}

	for _, batch := range e.batches(result) {
		if !send(Chunk{Type: TypeData, Payload: batch}) {
			return
		}
	}
	send(Chunk{Type: TypeDone})
}

// batches splits a collection result into batchSize groups. Non-slice
// results are a single batch of one payload.
func (e *Emitter) batches(result any) []any {
	v := reflect.ValueOf(result)
	if !v.IsValid() || v.Kind() != reflect.Slice {
		return []any{result}
	}
	n := v.Len()
	if n == 0 {
		return []any{result} // one data chunk carrying the empty collection
	}
	var out []any
	for start := 0; start < n; start += e.batchSize {
		end := min(start+e.batchSize, n)
		out = append(out, v.Slice(start, end).Interface())
	}
	return out
}

// ErrClientGone can be returned by Sink implementations to signal a
// disconnect explicitly.
var ErrClientGone = errors.New("stream: client disconnected")
