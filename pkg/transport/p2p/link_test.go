package p2p

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/libp2p/go-msgio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/zentalk-messenger/pkg/transport"
)

var errStreamReset = errors.New("stream reset")

// pipeStream is a link stream whose peer only reads when told to
type pipeStream struct {
	pr *io.PipeReader
	pw *io.PipeWriter

	mu       sync.Mutex
	deadline time.Time
	reset    bool
}

func newPipeStream() *pipeStream {
	pr, pw := io.Pipe()
	return &pipeStream{pr: pr, pw: pw}
}

func (s *pipeStream) SetWriteDeadline(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadline = t
	return nil
}

func (s *pipeStream) Reset() error {
	s.mu.Lock()
	s.reset = true
	s.mu.Unlock()
	return s.pw.CloseWithError(errStreamReset)
}

func (s *pipeStream) Close() error {
	return s.pw.Close()
}

func (s *pipeStream) state() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline, s.reset
}

func newPipeLink(s *pipeStream) *link {
	return &link{id: "pipe", stream: s, writer: msgio.NewVarintWriter(s.pw)}
}

func TestLinkWriteDeadline(t *testing.T) {
	s := newPipeStream()
	l := newPipeLink(s)
	go io.Copy(io.Discard, s.pr)

	before := time.Now()
	require.NoError(t, l.write(context.Background(), []byte("frame")))

	deadline, reset := s.state()
	assert.False(t, reset)
	assert.WithinDuration(t, before.Add(writeTimeout), deadline, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	require.NoError(t, l.write(ctx, []byte("frame")))

	want, _ := ctx.Deadline()
	deadline, _ = s.state()
	assert.Equal(t, want, deadline)
}

func TestLinkWriteUnblocksOnCancel(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		want    error
	}{
		{"deadline", 50 * time.Millisecond, context.DeadlineExceeded},
		{"already done", 0, context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// nobody reads the pipe, so the write blocks like a full stream window
			s := newPipeStream()
			l := newPipeLink(s)

			ctx, cancel := context.WithTimeout(context.Background(), tt.timeout)
			defer cancel()

			done := make(chan error, 1)
			go func() { done <- l.write(ctx, []byte("stuck")) }()

			select {
			case err := <-done:
				assert.ErrorIs(t, err, tt.want)
			case <-time.After(5 * time.Second):
				t.Fatal("write did not observe context")
			}
		})
	}
}

func TestSendAllHonoursContext(t *testing.T) {
	tr := &Transport{links: make(map[transport.LinkID]*link)}
	s := newPipeStream()
	l := newPipeLink(s)
	tr.links[l.id] = l

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tr.sendAll(ctx, []*link{l}, []byte("late"))
	assert.ErrorIs(t, err, context.Canceled)

	_, reset := s.state()
	assert.False(t, reset)
	assert.Contains(t, tr.links, l.id)
	t.Logf("✅ cancelled send leaves link %s intact", l.id)
}
