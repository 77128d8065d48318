package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/zentalk-messenger/pkg/identity"
	"github.com/ZentaChain/zentalk-messenger/pkg/messenger"
	"github.com/ZentaChain/zentalk-messenger/pkg/protocol"
	"github.com/ZentaChain/zentalk-messenger/pkg/storage"
	"github.com/ZentaChain/zentalk-messenger/pkg/transport/memory"
)

const waitFor = 5 * time.Second

func newTestBridge(t *testing.T) *Bridge {
	t.Helper()

	dir := t.TempDir()
	db, err := storage.NewMessageDB(filepath.Join(dir, "messages.db"), []byte("secret"))
	require.NoError(t, err)

	b, err := New(db, filepath.Join(dir, "files"))
	require.NoError(t, err)

	t.Cleanup(func() {
		b.Close()
		db.Close()
	})
	return b
}

// fakeSender records commands instead of sending them
type fakeSender struct {
	mu   sync.Mutex
	cmds []messenger.Command
	err  error
	addr identity.Address
}

func (f *fakeSender) Send(ctx context.Context, cmd messenger.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
	return f.err
}

func (f *fakeSender) Address() identity.Address {
	return f.addr
}

func (f *fakeSender) MDU() int {
	return memory.DefaultMDU
}

func (f *fakeSender) events() []protocol.Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]protocol.Event, 0, len(f.cmds))
	for _, cmd := range f.cmds {
		out = append(out, cmd.Event())
	}
	return out
}

type testPeer struct {
	bridge *Bridge
	server *Server
	m      *messenger.Messenger
}

func (p *testPeer) address() string {
	return p.m.Address().String()
}

func startPeer(t *testing.T, net *memory.Network, name string) *testPeer {
	t.Helper()

	b := newTestBridge(t)
	tr := net.NewTransport(name)

	cfg := messenger.DefaultConfig()
	cfg.AnnounceInterval = time.Hour
	cfg.AckTimeout = 100 * time.Millisecond

	m, err := messenger.New(context.Background(), tr, identity.FromName(name), protocol.ContactData{Name: name}, b, cfg)
	require.NoError(t, err)
	b.Attach(m)

	t.Cleanup(func() {
		m.Close()
		tr.Close()
	})

	info := func() NodeInfo {
		return NodeInfo{Address: m.Address().String(), Name: name, MDU: m.MDU()}
	}
	return &testPeer{bridge: b, server: NewServer(b, DefaultServerConfig(), info), m: m}
}

// connect gives from an out-link to to
func connect(t *testing.T, from, to *testPeer) {
	t.Helper()

	require.NoError(t, to.m.Announce(context.Background()))
	require.Eventually(t, func() bool {
		_, err := from.bridge.DB().GetContact(to.address())
		return err == nil
	}, waitFor, 5*time.Millisecond)
}

func postJSON(t *testing.T, s *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func get(s *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

// response decodes a SuccessResponse whose data has type T
type response[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) response[T] {
	t.Helper()

	var r response[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r), w.Body.String())
	return r
}
