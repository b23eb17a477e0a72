package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

// scriptedReader returns its results in order, then blocks until ctx is done.
type scriptedReader struct {
	mu      sync.Mutex
	results []readResult
	cancel  context.CancelFunc
}

type readResult struct {
	msg kafka.Message
	err error
}

func (r *scriptedReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.results) == 0 {
		r.mu.Unlock()
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	next := r.results[0]
	r.results = r.results[1:]
	r.mu.Unlock()
	return next.msg, next.err
}

func (r *scriptedReader) Close() error { return nil }

type recordingSink struct {
	lines [][]byte
	fail  string
}

func (s *recordingSink) PushEventJSON(_ context.Context, raw []byte) error {
	if string(raw) == s.fail {
		return errors.New("loki down")
	}
	s.lines = append(s.lines, raw)
	return nil
}

func TestRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &scriptedReader{
		cancel: cancel,
		results: []readResult{
			{msg: kafka.Message{Value: []byte(`{"eventType":"session.login"}`)}},
			{err: errors.New("broker hiccup")},
			{msg: kafka.Message{Value: []byte(`bad`)}},
			{msg: kafka.Message{Value: []byte(`{"eventType":"session.logout"}`)}},
		},
	}
	sink := &recordingSink{fail: "bad"}

	n := Run(ctx, r, sink)

	assert.Equal(t, 2, n)
	assert.Len(t, sink.lines, 2)
	assert.JSONEq(t, `{"eventType":"session.logout"}`, string(sink.lines[1]))
}
