package live

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/eventchat/models"
	"github.com/akinalp/eventchat/pkg"
	"github.com/akinalp/eventchat/ws"
)

// fakeConn, inbox kanalından okur; Close sonrası okuma hata döner.
type fakeConn struct {
	inbox  chan ws.Event
	closed chan struct{}
	once   sync.Once

	// stall: WriteJSON, Close çağrılana kadar bekler (ölü ağ bağlantısı).
	stall bool

	mu        sync.Mutex
	writes    []ws.Event
	deadlines []time.Time
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbox: make(chan ws.Event, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadJSON(v any) error {
	select {
	case ev := <-c.inbox:
		raw, _ := json.Marshal(ev)
		return json.Unmarshal(raw, v)
	case <-c.closed:
		return io.EOF
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	if c.stall {
		<-c.closed
		return io.ErrClosedPipe
	}
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, v.(ws.Event))
	return nil
}

func (c *fakeConn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadlines = append(c.deadlines, t)
	return nil
}

func (c *fakeConn) writeDeadlines() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Time(nil), c.deadlines...)
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) written() []ws.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ws.Event(nil), c.writes...)
}

type dialCall struct {
	url    string
	header http.Header
}

// fakeDialer, her Dial için sıradaki sonucu kullanır; sonuç yoksa yeni conn verir.
type fakeDialer struct {
	mu      sync.Mutex
	stall   bool
	results []error
	calls   []dialCall
	conns   []*fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, target string, header http.Header) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls = append(d.calls, dialCall{url: target, header: header.Clone()})
	if len(d.results) > 0 {
		err := d.results[0]
		d.results = d.results[1:]
		if err != nil {
			return nil, err
		}
	}
	conn := newFakeConn()
	conn.stall = d.stall
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dialCalls() []dialCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dialCall(nil), d.calls...)
}

func (d *fakeDialer) lastConn() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) connCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

var errRefused = errors.New("connection refused")

var alice = models.Identity{UserID: "u1", Role: models.RoleUser, Token: "tok-1"}

func newTestManager(d *fakeDialer, urls ...string) *Manager {
	if len(urls) == 0 {
		urls = []string{"ws://example.test/ws"}
	}
	return New(Options{
		URLs:              urls,
		InitialBackoff:    5 * time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
		MaxAttempts:       3,
		HeartbeatInterval: time.Hour,
		Dialer:            d,
		Logger:            log.New(io.Discard, "", 0),
	})
}

func waitState(t *testing.T, m *Manager, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == want }, 2*time.Second, 2*time.Millisecond,
		"expected state %s, got %s", want, m.State())
}

func TestOpenWithoutCredential(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(d)

	err := m.Open(context.Background(), models.Identity{UserID: "u1"})
	require.ErrorIs(t, err, pkg.ErrNotAuthenticated)
	assert.Equal(t, Absent, m.State())
	assert.Empty(t, d.dialCalls())
}

func TestOpenTwiceKeepsSingleConnection(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(d)
	defer m.Close()

	require.NoError(t, m.Open(context.Background(), alice))
	waitState(t, m, Connected)
	first := d.lastConn()

	require.NoError(t, m.Open(context.Background(), alice))
	waitState(t, m, Connected)
	require.Eventually(t, func() bool { return d.connCount() == 2 }, time.Second, 2*time.Millisecond)

	assert.True(t, first.isClosed(), "previous session must be torn down")
	assert.False(t, d.lastConn().isClosed())
}

func TestEmitsAreNoOpsUnlessConnected(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(d)

	assert.False(t, m.JoinRoom("c1"))
	assert.False(t, m.EmitTyping("c1", true))
	assert.False(t, m.EmitMarkRead("c1"))

	require.NoError(t, m.Open(context.Background(), alice))
	waitState(t, m, Connected)
	defer m.Close()

	assert.True(t, m.JoinRoom("c1"))
	assert.True(t, m.EmitTyping("c1", true))

	writes := d.lastConn().written()
	require.Len(t, writes, 2)
	assert.Equal(t, ws.OpJoinChat, writes[0].Op)
	assert.JSONEq(t, `{"chatId":"c1"}`, string(writes[0].Data))
	assert.Equal(t, ws.OpTyping, writes[1].Op)
	assert.JSONEq(t, `{"chatId":"c1","isTyping":true}`, string(writes[1].Data))
}

func TestDispatchByRoom(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(d)
	defer m.Close()

	var mu sync.Mutex
	got := map[string][]string{}
	record := func(room string) func(ws.Event) {
		return func(ev ws.Event) {
			mu.Lock()
			defer mu.Unlock()
			got[room] = append(got[room], ev.Op)
		}
	}
	count := func(room string) int {
		mu.Lock()
		defer mu.Unlock()
		return len(got[room])
	}

	subA := m.Subscribe("a", record("a"))
	subB := m.Subscribe("b", record("b"))
	defer subB.Unsubscribe()

	require.NoError(t, m.Open(context.Background(), alice))
	waitState(t, m, Connected)
	conn := d.lastConn()

	msg, err := ws.NewEvent(ws.OpNewMessage, ws.NewMessageData{ChatID: "a", Message: models.Message{ID: "m1", ChatID: "a"}})
	require.NoError(t, err)
	conn.inbox <- msg
	conn.inbox <- ws.Event{Op: ws.OpHeartbeatAck}

	// chatId taşımayan typing tüm odalara gider
	typing, err := ws.NewEvent(ws.OpUserTyping, ws.UserTypingData{UserID: "u2", IsTyping: true})
	require.NoError(t, err)
	conn.inbox <- typing

	require.Eventually(t, func() bool { return count("a") == 2 && count("b") == 1 }, time.Second, 2*time.Millisecond)

	subA.Unsubscribe()
	subA.Unsubscribe()

	conn.inbox <- msg
	read, err := ws.NewEvent(ws.OpMessagesRead, ws.MessagesReadData{ChatID: "b", UserID: "u2"})
	require.NoError(t, err)
	conn.inbox <- read

	require.Eventually(t, func() bool { return count("b") == 2 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, 2, count("a"))

	mu.Lock()
	assert.Equal(t, []string{ws.OpUserTyping, ws.OpMessagesRead}, got["b"])
	mu.Unlock()
}

func TestReconnectsAfterConnectionLoss(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(d)
	defer m.Close()

	var mu sync.Mutex
	var states []State
	sub := m.SubscribeState(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s)
	})
	defer sub.Unsubscribe()

	require.NoError(t, m.Open(context.Background(), alice))
	waitState(t, m, Connected)

	d.lastConn().Close()

	require.Eventually(t, func() bool { return d.connCount() == 2 }, time.Second, 2*time.Millisecond)
	waitState(t, m, Connected)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{Connecting, Connected, Reconnecting, Connected}, states)
}

func TestRetryExhaustionFails(t *testing.T) {
	d := &fakeDialer{results: []error{errRefused, errRefused, errRefused, errRefused, errRefused}}
	m := newTestManager(d)
	defer m.Close()

	require.NoError(t, m.Open(context.Background(), alice))
	waitState(t, m, Failed)

	// ilk deneme + MaxAttempts yeniden deneme
	assert.Len(t, d.dialCalls(), 4)
	assert.False(t, m.JoinRoom("c1"))
}

func TestUnauthorizedFailsImmediately(t *testing.T) {
	d := &fakeDialer{results: []error{pkg.ErrUnauthorized}}
	m := newTestManager(d, "ws://compat.test/ws", "ws://direct.test/ws")
	defer m.Close()

	require.NoError(t, m.Open(context.Background(), alice))
	waitState(t, m, Failed)
	assert.Len(t, d.dialCalls(), 1)
}

func TestDialOrderAndCredential(t *testing.T) {
	d := &fakeDialer{results: []error{errRefused}}
	m := newTestManager(d, "ws://compat.test/ws", "ws://direct.test/ws?v=1")
	defer m.Close()

	require.NoError(t, m.Open(context.Background(), alice))
	waitState(t, m, Connected)

	calls := d.dialCalls()
	require.Len(t, calls, 2)

	first, err := url.Parse(calls[0].url)
	require.NoError(t, err)
	assert.Equal(t, "compat.test", first.Host)
	assert.Equal(t, "tok-1", first.Query().Get("token"))

	second, err := url.Parse(calls[1].url)
	require.NoError(t, err)
	assert.Equal(t, "direct.test", second.Host)
	assert.Equal(t, "1", second.Query().Get("v"))
	assert.Equal(t, "tok-1", second.Query().Get("token"))

	for _, c := range calls {
		assert.Equal(t, "Bearer tok-1", c.header.Get("Authorization"))
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(d)

	m.Close()
	assert.Equal(t, Absent, m.State())

	require.NoError(t, m.Open(context.Background(), alice))
	waitState(t, m, Connected)
	conn := d.lastConn()

	m.Close()
	m.Close()
	assert.Equal(t, Absent, m.State())
	assert.True(t, conn.isClosed())
	assert.False(t, m.EmitMarkRead("c1"))

	// kapatılmış session yeniden bağlanmaya çalışmaz
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, d.connCount())
}

func TestHeartbeat(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(d)
	m.opts.HeartbeatInterval = 5 * time.Millisecond
	defer m.Close()

	require.NoError(t, m.Open(context.Background(), alice))
	waitState(t, m, Connected)
	conn := d.lastConn()

	require.Eventually(t, func() bool {
		for _, ev := range conn.written() {
			if ev.Op == ws.OpHeartbeat {
				return true
			}
		}
		return false
	}, time.Second, 2*time.Millisecond)
}

func TestWritesCarryDeadline(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(d)
	m.opts.WriteTimeout = time.Minute
	defer m.Close()

	require.NoError(t, m.Open(context.Background(), alice))
	waitState(t, m, Connected)

	before := time.Now()
	require.True(t, m.JoinRoom("c1"))

	deadlines := d.lastConn().writeDeadlines()
	require.Len(t, deadlines, 1)
	assert.True(t, deadlines[0].After(before.Add(50*time.Second)))
}

func TestCloseNotBlockedByStalledWriteInStateCallback(t *testing.T) {
	d := &fakeDialer{stall: true}
	m := newTestManager(d)

	joined := make(chan struct{}, 1)
	sub := m.SubscribeState(func(s State) {
		if s == Connected {
			select {
			case joined <- struct{}{}:
			default:
			}
			m.JoinRoom("c1") // yazma bağlantı kapanana kadar takılır
		}
	})
	defer sub.Unsubscribe()

	require.NoError(t, m.Open(context.Background(), alice))
	select {
	case <-joined:
	case <-time.After(2 * time.Second):
		t.Fatal("never connected")
	}

	closed := make(chan struct{})
	go func() {
		m.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("Close blocked: state=%s", m.State())
	}
	assert.Equal(t, Absent, m.State())
	assert.True(t, d.lastConn().isClosed())
}

func TestOpenReplacesSessionStalledInStateCallback(t *testing.T) {
	d := &fakeDialer{stall: true}
	m := newTestManager(d)
	defer m.Close()

	var once sync.Once
	sub := m.SubscribeState(func(s State) {
		if s == Connected {
			once.Do(func() { m.JoinRoom("c1") })
		}
	})
	defer sub.Unsubscribe()

	require.NoError(t, m.Open(context.Background(), alice))
	require.Eventually(t, func() bool { return d.connCount() == 1 }, 2*time.Second, 2*time.Millisecond)
	first := d.lastConn()

	opened := make(chan struct{})
	go func() {
		assert.NoError(t, m.Open(context.Background(), alice))
		close(opened)
	}()

	select {
	case <-opened:
	case <-time.After(2 * time.Second):
		t.Fatal("Open blocked behind stalled session")
	}
	assert.True(t, first.isClosed())
	waitState(t, m, Connected)
}

func TestBackoffDefaults(t *testing.T) {
	o := Options{InitialBackoff: 8 * time.Second}
	o.setDefaults()
	assert.Equal(t, 8*time.Second, o.MaxBackoff, "cap never below the initial delay")
	assert.Equal(t, 5, o.MaxAttempts)
	assert.Equal(t, 10*time.Second, o.WriteTimeout)

	o = Options{}
	o.setDefaults()
	assert.Equal(t, time.Second, o.InitialBackoff)
	assert.Equal(t, 5*time.Second, o.MaxBackoff)
}
