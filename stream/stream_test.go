package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/pixivmcp/dispatch"
)

// memSink records chunks and can be scripted to fail after n sends.
type memSink struct {
	chunks  []Chunk
	failAt  int // 0 = never fail
	onWrite func()
}

func (s *memSink) Send(c Chunk) error {
	if s.failAt > 0 && len(s.chunks)+1 >= s.failAt {
		return ErrClientGone
	}
	s.chunks = append(s.chunks, c)
	if s.onWrite != nil {
		s.onWrite()
	}
	return nil
}

// checkStream asserts seq starts at 0, increases by 1, and exactly one
// terminal chunk closes the stream.
func checkStream(t *testing.T, chunks []Chunk) {
	t.Helper()
	if len(chunks) == 0 {
		t.Fatal("empty stream")
	}
	terminals := 0
	for i, c := range chunks {
		if c.Seq != i {
			t.Errorf("chunk %d has seq %d", i, c.Seq)
		}
		if c.Type == TypeDone || c.Type == TypeError {
			terminals++
			if i != len(chunks)-1 {
				t.Errorf("terminal chunk at position %d of %d", i, len(chunks))
			}
		}
	}
	if terminals != 1 {
		t.Fatalf("stream has %d terminal chunks, want exactly 1", terminals)
	}
}

func TestEmit_SingleRecord(t *testing.T) {
	sink := &memSink{}
	NewEmitter().Emit(context.Background(), sink, map[string]any{"id": 1}, nil)

	checkStream(t, sink.chunks)
	if len(sink.chunks) != 2 {
		t.Fatalf("chunks: %d, want data+done", len(sink.chunks))
	}
	if sink.chunks[0].Type != TypeData || sink.chunks[1].Type != TypeDone {
		t.Fatalf("types: %s, %s", sink.chunks[0].Type, sink.chunks[1].Type)
	}
}

func TestEmit_CollectionBatching(t *testing.T) {
	items := make([]int, 12)
	for i := range items {
		items[i] = i
	}
	sink := &memSink{}
	NewEmitter().Emit(context.Background(), sink, items, nil)

	checkStream(t, sink.chunks)
	// 12 items at batch size 5: batches of 5, 5, 2, then done.
	if len(sink.chunks) != 4 {
		t.Fatalf("chunks: %d, want 3 data + done", len(sink.chunks))
	}
	wantLens := []int{5, 5, 2}
	for i, want := range wantLens {
		batch := sink.chunks[i].Payload.([]int)
		if len(batch) != want {
			t.Errorf("batch %d has %d items, want %d", i, len(batch), want)
		}
	}
	// Order across batches preserved.
	if got := sink.chunks[2].Payload.([]int); got[0] != 10 || got[1] != 11 {
		t.Errorf("last batch: %v", got)
	}
}

func TestEmit_CustomBatchSize(t *testing.T) {
	sink := &memSink{}
	NewEmitter(WithBatchSize(3)).Emit(context.Background(), sink, []int{1, 2, 3, 4}, nil)

	checkStream(t, sink.chunks)
	if len(sink.chunks) != 3 {
		t.Fatalf("chunks: %d, want 2 data + done", len(sink.chunks))
	}
}

func TestEmit_EmptyCollection(t *testing.T) {
	sink := &memSink{}
	NewEmitter().Emit(context.Background(), sink, []int{}, nil)

	checkStream(t, sink.chunks)
	if len(sink.chunks) != 2 || sink.chunks[0].Type != TypeData {
		t.Fatalf("chunks: %+v", sink.chunks)
	}
}

func TestEmit_FailureIsSingleErrorChunk(t *testing.T) {
	sink := &memSink{}
	failure := &dispatch.Failure{Kind: dispatch.FailureUpstream, Message: "status 404"}
	NewEmitter().Emit(context.Background(), sink, nil, failure)

	checkStream(t, sink.chunks)
	if len(sink.chunks) != 1 {
		t.Fatalf("chunks: %d, want exactly one error chunk", len(sink.chunks))
	}
	c := sink.chunks[0]
	if c.Type != TypeError || c.Error == nil || c.Error.Kind != dispatch.FailureUpstream {
		t.Fatalf("chunk: %+v", c)
	}
	if c.Payload != nil {
		t.Fatal("error chunk must carry no payload")
	}
}

func TestEmit_StopsOnSinkError(t *testing.T) {
	sink := &memSink{failAt: 2}
	NewEmitter().Emit(context.Background(), sink, make([]int, 20), nil)

	// First data chunk delivered, then the client went away: no further
	// writes, no terminal.
	if len(sink.chunks) != 1 {
		t.Fatalf("chunks after disconnect: %d, want 1", len(sink.chunks))
	}
}

func TestEmit_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sink := &memSink{onWrite: cancel} // client disconnects after first chunk
	NewEmitter().Emit(ctx, sink, make([]int, 20), nil)

	if len(sink.chunks) != 1 {
		t.Fatalf("chunks after cancel: %d, want 1", len(sink.chunks))
	}
}

func TestSSESink_WritesEventsAndHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	sink, err := NewSSESink(rec)
	if err != nil {
		t.Fatal(err)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: %q", ct)
	}

	NewEmitter().Emit(context.Background(), sink, []string{"a", "b"}, nil)

	body := rec.Body.String()
	events := strings.Split(strings.TrimSpace(body), "\n\n")
	if len(events) != 2 {
		t.Fatalf("events: %d\n%s", len(events), body)
	}
	if !strings.HasPrefix(events[0], "event: data\n") {
		t.Fatalf("first event: %q", events[0])
	}
	if !strings.HasPrefix(events[1], "event: done\n") {
		t.Fatalf("second event: %q", events[1])
	}

	var c Chunk
	payload := strings.TrimPrefix(strings.SplitN(events[0], "\n", 2)[1], "data: ")
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		t.Fatalf("unmarshal event data: %v", err)
	}
	if c.Seq != 0 || c.Type != TypeData {
		t.Fatalf("chunk: %+v", c)
	}
}

func TestSSESink_RequiresFlusher(t *testing.T) {
	if _, err := NewSSESink(plainWriter{httptest.NewRecorder()}); err == nil {
		t.Fatal("expected error for non-flushing writer")
	}
}

// plainWriter exposes only the ResponseWriter methods of the wrapped
// recorder, hiding its Flusher implementation.
type plainWriter struct{ http.ResponseWriter }
