// Package live, client core'un kalıcı live channel bağlantısını yönetir.
//
// Manager, oturum açmış kimlik başına tek bir WebSocket bağlantısı tutar:
// bağlanır, koparsa exponential backoff ile yeniden bağlanır, 30sn'de bir
// heartbeat gönderir ve gelen event'leri chat id'sine göre odanın
// abonelerine dağıtır.
//
//	m := live.New(live.Options{URLs: cfg.Client.LiveURLs})
//	_ = m.Open(ctx, identity)
//	sub := m.Subscribe(chatID, func(ev ws.Event) { ... })
//	defer sub.Unsubscribe()
//	m.JoinRoom(chatID)
package live

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/akinalp/eventchat/models"
	"github.com/akinalp/eventchat/pkg"
	"github.com/akinalp/eventchat/ws"
)

// Options, Manager ayarları. Sıfır değerler varsayılanlarla doldurulur.
type Options struct {
	// URLs sırayla denenir: önce uyumluluk endpoint'i, sonra doğrudan olan.
	URLs []string

	InitialBackoff    time.Duration // 1s
	MaxBackoff        time.Duration // 5s
	MaxAttempts       int           // <= 0 ise 5; sonrasında Failed
	HeartbeatInterval time.Duration // 30s
	WriteTimeout      time.Duration // 10s; her yazma için deadline

	Dialer Dialer
	Logger *log.Logger
	Debug  bool
}

func (o *Options) setDefaults() {
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 5 * time.Second
	}
	if o.MaxBackoff < o.InitialBackoff {
		o.MaxBackoff = o.InitialBackoff
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.Dialer == nil {
		o.Dialer = WSDialer{}
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
}

// session, tek bir kimliğe bağlı bağlantı ömrü. Open her çağrıldığında
// yenisi oluşur; eski session'ın goroutine'i kendini current olmadığını
// görünce hiçbir state'e dokunmadan çıkar.
type session struct {
	identity models.Identity
	ctx      context.Context
	cancel   context.CancelFunc
	conn     Conn // Manager.mu altında
}

// Manager, live channel session'ının sahibi. Process başına bir tane olur.
type Manager struct {
	opts Options

	// notifyMu, state değişimi + abone bildirimini sıralı tutar.
	// SubscribeState callback'leri Open/Close'u senkron çağırmamalıdır.
	// Open/Close eski bağlantıyı notifyMu'yu almadan önce kapatır: callback
	// içinde takılan bir yazma böylece hata ile döner ve kilidi bırakır.
	notifyMu sync.Mutex

	mu        sync.Mutex
	state     State
	current   *session
	nextSubID int
	stateSubs map[int]func(State)
	roomSubs  map[string]map[int]func(ws.Event)

	writeMu sync.Mutex
}

// New, Manager oluşturur. Open çağrılana kadar Absent durumundadır.
func New(opts Options) *Manager {
	opts.setDefaults()
	return &Manager{
		opts:      opts,
		stateSubs: make(map[int]func(State)),
		roomSubs:  make(map[string]map[int]func(ws.Event)),
	}
}

// Open, identity için yeni bir session başlatır. Varsa önceki session
// tamamen kapatılır. Bağlantı arka planda kurulur; ilerleme State ve
// SubscribeState ile izlenir.
//
// Credential yoksa hiçbir bağlantı denenmez, state Absent kalır ve
// pkg.ErrNotAuthenticated döner.
func (m *Manager) Open(ctx context.Context, identity models.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !identity.HasCredential() {
		m.Close()
		return pkg.ErrNotAuthenticated
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	s := &session{identity: identity, ctx: sessCtx, cancel: cancel}

	m.mu.Lock()
	prev, prevConn := m.detachLocked()
	m.current = s
	m.mu.Unlock()

	teardown(prev, prevConn)
	m.transition(s, Connecting, nil)

	go m.run(s)
	return nil
}

// Close, session'ı kapatır ve Absent'a döner. Birden fazla çağrılabilir.
func (m *Manager) Close() {
	m.mu.Lock()
	prev, prevConn := m.detachLocked()
	m.mu.Unlock()

	teardown(prev, prevConn)

	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if m.current != nil {
		// Bu arada yeni bir Open kazandı; state onun
		m.mu.Unlock()
		return
	}
	subs := m.setStateLocked(Absent)
	m.mu.Unlock()

	notify(subs, Absent)
}

// State, güncel bağlantı durumu.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SubscribeState, her durum değişiminde fn'i çağırır.
func (m *Manager) SubscribeState(fn func(State)) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	m.stateSubs[id] = fn

	return NewSubscription(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.stateSubs, id)
	})
}

// Subscribe, chatID odasına gelen event'ler için fn'i çağırır.
// Callback'ler manager'ın tek okuma goroutine'inden, sırayla çağrılır.
func (m *Manager) Subscribe(chatID string, fn func(ws.Event)) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	if m.roomSubs[chatID] == nil {
		m.roomSubs[chatID] = make(map[int]func(ws.Event))
	}
	m.roomSubs[chatID][id] = fn

	return NewSubscription(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.roomSubs[chatID], id)
		if len(m.roomSubs[chatID]) == 0 {
			delete(m.roomSubs, chatID)
		}
	})
}

// JoinRoom, Connected değilse hiçbir şey yapmaz; kuyruğa alınmaz.
// Yeniden bağlanınca tekrar katılmak abonenin işidir.
func (m *Manager) JoinRoom(chatID string) bool {
	return m.emit(ws.OpJoinChat, ws.ChatRef{ChatID: chatID})
}

// LeaveRoom, Connected değilse hiçbir şey yapmaz.
func (m *Manager) LeaveRoom(chatID string) bool {
	return m.emit(ws.OpLeaveChat, ws.ChatRef{ChatID: chatID})
}

// EmitTyping, fire-and-forget; bağlı değilse düşürülür.
func (m *Manager) EmitTyping(chatID string, isTyping bool) bool {
	return m.emit(ws.OpTyping, ws.TypingData{ChatID: chatID, IsTyping: isTyping})
}

// EmitMarkRead, fire-and-forget; bağlı değilse düşürülür.
func (m *Manager) EmitMarkRead(chatID string) bool {
	return m.emit(ws.OpMarkRead, ws.ChatRef{ChatID: chatID})
}

// ─── Session goroutine ───

// run, session'ın bağlan / oku / yeniden bağlan döngüsü.
//
// Bağlantı koptuğunda veya dial başarısız olduğunda backoff'tan sıradaki
// gecikme alınır. WithMaxRetries, MaxAttempts denemeden sonra Stop döner ve
// session Failed olur. Başarılı her bağlantı sayacı sıfırlar.
func (m *Manager) run(s *session) {
	b := m.newBackoff()

	for {
		conn, err := m.dialAny(s)
		if err == nil {
			if !m.attach(s, conn) {
				conn.Close()
				return
			}
			b.Reset()
			m.serve(s, conn)
			m.detachConn(s, conn)

			if s.ctx.Err() != nil {
				return
			}
			m.opts.Logger.Printf("[live] connection lost, reconnecting")
		} else {
			if s.ctx.Err() != nil {
				return
			}
			if errors.Is(err, pkg.ErrUnauthorized) {
				m.opts.Logger.Printf("[live] credential rejected: %v", err)
				m.transition(s, Failed, nil)
				return
			}
			m.debugf("dial failed: %v", err)
		}

		delay := b.NextBackOff()
		if delay == backoff.Stop {
			m.opts.Logger.Printf("[live] giving up after %d reconnect attempts", m.opts.MaxAttempts)
			m.transition(s, Failed, nil)
			return
		}
		if !m.transition(s, Reconnecting, nil) {
			return
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-s.ctx.Done():
			timer.Stop()
			return
		}
	}
}

func (m *Manager) newBackoff() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = m.opts.InitialBackoff
	exp.MaxInterval = m.opts.MaxBackoff
	exp.Multiplier = 2
	exp.RandomizationFactor = 0.2
	exp.MaxElapsedTime = 0 // sınır deneme sayısıyla
	b := backoff.WithMaxRetries(exp, uint64(m.opts.MaxAttempts))
	b.Reset()
	return b
}

// dialAny, URL'leri sırayla dener; ilk başarılı bağlantıyı döner.
// Credential hem Authorization header'ında hem token query parametresinde gider.
func (m *Manager) dialAny(s *session) (Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.identity.Token)

	var lastErr error
	for _, raw := range m.opts.URLs {
		target, err := withToken(raw, s.identity.Token)
		if err != nil {
			lastErr = err
			continue
		}

		conn, err := m.opts.Dialer.Dial(s.ctx, target, header)
		if err == nil {
			m.debugf("connected via %s", raw)
			return conn, nil
		}
		if errors.Is(err, pkg.ErrUnauthorized) {
			return nil, err
		}
		m.debugf("dial %s failed: %v", raw, err)
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no live channel URL configured")
	}
	return nil, lastErr
}

func withToken(raw, token string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// attach, session hâlâ current ise bağlantıyı bağlar ve Connected yapar.
func (m *Manager) attach(s *session, conn Conn) bool {
	return m.transition(s, Connected, func() { s.conn = conn })
}

func (m *Manager) detachConn(s *session, conn Conn) {
	m.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	m.mu.Unlock()
	conn.Close()
}

// serve, bağlantı kapanana kadar event okur ve dağıtır.
func (m *Manager) serve(s *session, conn Conn) {
	stop := make(chan struct{})
	defer close(stop)
	go m.heartbeat(conn, stop)

	for {
		var ev ws.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if s.ctx.Err() == nil {
				m.debugf("read failed: %v", err)
			}
			return
		}
		m.dispatch(ev)
	}
}

func (m *Manager) heartbeat(conn Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(m.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.writeTo(conn, ws.Event{Op: ws.OpHeartbeat}); err != nil {
				m.debugf("heartbeat failed: %v", err)
				conn.Close() // okuma döngüsü hatayı görüp yeniden bağlanır
				return
			}
		case <-stop:
			return
		}
	}
}

// dispatch, event'i payload'daki chatId'nin odasına iletir. chatId
// taşımayan oda event'leri (eski server'ların user_typing'i) tüm açık
// odalara gider; her abone kendi filtresini uygular.
func (m *Manager) dispatch(ev ws.Event) {
	switch ev.Op {
	case ws.OpHeartbeatAck:
		return
	case ws.OpError:
		m.opts.Logger.Printf("[live] server error event: %s", string(ev.Data))
		return
	}

	var ref ws.ChatRef
	if len(ev.Data) > 0 {
		if err := json.Unmarshal(ev.Data, &ref); err != nil {
			m.debugf("malformed %s payload: %v", ev.Op, err)
			return
		}
	}

	m.mu.Lock()
	var targets []func(ws.Event)
	if ref.ChatID != "" {
		for _, fn := range m.roomSubs[ref.ChatID] {
			targets = append(targets, fn)
		}
	} else {
		for _, subs := range m.roomSubs {
			for _, fn := range subs {
				targets = append(targets, fn)
			}
		}
	}
	m.mu.Unlock()

	for _, fn := range targets {
		fn(ev)
	}
}

// ─── Yazma ───

func (m *Manager) emit(op string, payload any) bool {
	m.mu.Lock()
	var conn Conn
	if m.current != nil && m.state == Connected {
		conn = m.current.conn
	}
	m.mu.Unlock()

	if conn == nil {
		m.debugf("dropping %s: not connected", op)
		return false
	}

	ev, err := ws.NewEvent(op, payload)
	if err != nil {
		m.opts.Logger.Printf("[live] %v", err)
		return false
	}
	if err := m.writeTo(conn, ev); err != nil {
		m.debugf("write %s failed: %v", op, err)
		conn.Close()
		return false
	}
	return true
}

// writeTo, yazmaları sıralar; ölü bir bağlantıda WriteTimeout sonra hata döner.
func (m *Manager) writeTo(conn Conn, ev ws.Event) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(m.opts.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(ev)
}

// ─── State ───

// transition, session hâlâ current ise apply'ı çalıştırıp state'i değiştirir
// ve aboneleri bilgilendirir. Session değiştiyse false döner.
func (m *Manager) transition(s *session, to State, apply func()) bool {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if m.current != s {
		m.mu.Unlock()
		return false
	}
	if apply != nil {
		apply()
	}
	subs := m.setStateLocked(to)
	m.mu.Unlock()

	notify(subs, to)
	return true
}

// setStateLocked, state değiştiyse bildirilecek abonelerin kopyasını döner.
func (m *Manager) setStateLocked(to State) []func(State) {
	if m.state == to {
		return nil
	}
	m.debugf("state %s -> %s", m.state, to)
	m.state = to

	subs := make([]func(State), 0, len(m.stateSubs))
	for _, fn := range m.stateSubs {
		subs = append(subs, fn)
	}
	return subs
}

func (m *Manager) detachLocked() (*session, Conn) {
	prev := m.current
	m.current = nil
	if prev == nil {
		return nil, nil
	}
	conn := prev.conn
	prev.conn = nil
	return prev, conn
}

func teardown(s *session, conn Conn) {
	if s != nil {
		s.cancel()
	}
	if conn != nil {
		conn.Close()
	}
}

func notify(subs []func(State), state State) {
	for _, fn := range subs {
		fn(state)
	}
}

func (m *Manager) debugf(format string, args ...any) {
	if m.opts.Debug {
		m.opts.Logger.Printf("[live] "+format, args...)
	}
}
