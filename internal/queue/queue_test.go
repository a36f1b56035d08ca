package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	msgs chan kafka.Message
}

func (f *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-f.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (f *fakeReader) Close() error { return nil }

func TestConsumer_Run(t *testing.T) {
	r := &fakeReader{msgs: make(chan kafka.Message, 3)}
	r.msgs <- kafka.Message{Value: []byte("post_1")}
	r.msgs <- kafka.Message{Value: []byte("broken")}
	r.msgs <- kafka.Message{Value: []byte("post_2")}

	var (
		mu   sync.Mutex
		seen []string
		done = make(chan struct{})
	)
	handle := func(ctx context.Context, postID string) error {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)

		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, postID)
		if len(seen) == 3 {
			close(done)
		}
		if postID == "broken" {
			return errors.New("boom")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := newConsumer(r, time.Minute, handle, nil)
	stopped := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(stopped)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not called for every message")
	}
	cancel()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"post_1", "broken", "post_2"}, seen)
	require.NoError(t, c.Close())
}

func TestInline(t *testing.T) {
	var got string
	p := Inline{Handle: func(_ context.Context, postID string) error {
		got = postID
		return nil
	}}
	require.NoError(t, p.Enqueue(context.Background(), "post_9"))
	assert.Equal(t, "post_9", got)
	assert.False(t, p.Async())
	assert.NoError(t, p.Close())
}

func TestKafkaProducer_Async(t *testing.T) {
	p := NewKafkaProducer([]string{"localhost:9092"}, "portfolio-thumbnails")
	assert.True(t, p.Async())
	assert.NoError(t, p.Close())
}
