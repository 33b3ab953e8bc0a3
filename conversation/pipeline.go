// Package conversation, açık tek bir konuşmanın mesaj akışını yönetir:
// geçmişi yükler, optimistic gönderim yapar, live event'leri birleştirir,
// typing göstergesini ve okundu bilgisini yürütür.
//
// Pipeline, live channel'a bir oda aboneliği ve bir state aboneliği ile
// bağlanır; Close ikisini de bırakır ve tüm timer'ları durdurur.
package conversation

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/google/uuid"

	"github.com/akinalp/eventchat/gateway"
	"github.com/akinalp/eventchat/live"
	"github.com/akinalp/eventchat/models"
	"github.com/akinalp/eventchat/pkg"
	"github.com/akinalp/eventchat/ws"
)

// Channel, pipeline'ın live channel'dan kullandığı yüzey. *live.Manager karşılar.
type Channel interface {
	SubscribeState(fn func(live.State)) *live.Subscription
	Subscribe(chatID string, fn func(ws.Event)) *live.Subscription
	JoinRoom(chatID string) bool
	LeaveRoom(chatID string) bool
	EmitTyping(chatID string, isTyping bool) bool
	EmitMarkRead(chatID string) bool
}

// Deps, pipeline bağımlılıkları.
type Deps struct {
	Gateway  gateway.Gateway
	Channel  Channel
	Identity models.Identity

	TypingIdle    time.Duration // 2s: son tuştan sonra typing=false
	TypingTimeout time.Duration // 3s: karşı tarafın typing'i bu süre sonra düşer
	NewID         func() string
	OnClose       func()

	Logger *log.Logger
	Debug  bool
}

func (d *Deps) setDefaults() {
	if d.TypingIdle <= 0 {
		d.TypingIdle = 2 * time.Second
	}
	if d.TypingTimeout <= 0 {
		d.TypingTimeout = 3 * time.Second
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if d.Logger == nil {
		d.Logger = log.Default()
	}
}

// MessageView, ekranda gösterilen mesaj.
type MessageView struct {
	models.Message
	IsMine  bool
	Pending bool // server onayı bekleniyor
}

const tempPrefix = "temp-"

// requestTimeout, event handler'larından başlatılan arka plan REST çağrıları için.
const requestTimeout = 15 * time.Second

// Pipeline, açık bir konuşma.
type Pipeline struct {
	deps   Deps
	chatID string

	mu           sync.Mutex
	status       Status
	counterpart  models.Participant
	msgs         *store
	inFlight     string
	input        string
	selfTyping   bool
	peerTyping   bool
	peerTimer    *time.Timer
	atBottom     bool
	jumpToLatest bool
	scrollReq    bool
	reloading    bool
	reloadAgain  bool // reload sürerken yeni messages_read geldi

	stopTyping func(f func())
	subs       []*live.Subscription
	updates    chan struct{}
	closeOnce  sync.Once
}

// Open, konuşmayı çözer (gerekirse oluşturur), geçmişi yükler, odaya
// katılır ve okundu işaretler. Hata durumunda hiçbir abonelik kalmaz.
func Open(ctx context.Context, deps Deps, target Target) (*Pipeline, error) {
	deps.setDefaults()
	if !deps.Identity.HasCredential() {
		return nil, pkg.ErrNotAuthenticated
	}

	chatID := target.ChatID
	if chatID == "" {
		started, err := deps.Gateway.StartChat(ctx, target.VendorID)
		if err != nil {
			return nil, fmt.Errorf("failed to start chat: %w", err)
		}
		chatID = started.ID
	}

	detail, err := deps.Gateway.GetChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat %s: %w", chatID, err)
	}

	p := &Pipeline{
		deps:        deps,
		chatID:      detail.ID,
		status:      Initializing,
		counterpart: detail.Counterpart,
		msgs:        newStore(),
		atBottom:    true,
		stopTyping:  debounce.New(deps.TypingIdle),
		updates:     make(chan struct{}, 1),
	}
	p.msgs.merge(detail.Messages)

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if deps.Channel != nil {
		p.subs = append(p.subs,
			deps.Channel.Subscribe(p.chatID, p.handleEvent),
			deps.Channel.SubscribeState(p.handleState),
		)
	}

	p.mu.Lock()
	p.status = Ready
	p.scrollReq = true
	p.mu.Unlock()

	if deps.Channel != nil {
		deps.Channel.JoinRoom(p.chatID)
	}
	p.markRead(ctx)
	p.notify()

	return p, nil
}

// ─── Okuma ───

func (p *Pipeline) ChatID() string { return p.chatID }

func (p *Pipeline) Counterpart() models.Participant {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counterpart
}

func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Messages, geliş sırasıyla mesajlar.
func (p *Pipeline) Messages() []MessageView {
	p.mu.Lock()
	defer p.mu.Unlock()

	list := p.msgs.list()
	out := make([]MessageView, 0, len(list))
	for _, m := range list {
		out = append(out, MessageView{
			Message: m,
			IsMine:  m.AuthorID() == p.deps.Identity.UserID,
			Pending: m.ID == p.inFlight,
		})
	}
	return out
}

// CounterpartTyping, karşı tarafın yazıyor göstergesi.
func (p *Pipeline) CounterpartTyping() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peerTyping
}

func (p *Pipeline) Input() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.input
}

// Updates, görünür state her değiştiğinde sinyal verir.
func (p *Pipeline) Updates() <-chan struct{} { return p.updates }

// ─── Scroll ───

// SetAtBottom, görünümün en altta olup olmadığını bildirir.
func (p *Pipeline) SetAtBottom(atBottom bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.atBottom = atBottom
	if atBottom {
		p.jumpToLatest = false
	}
}

// ShowJumpToLatest, en alttayken gelmeyen yeni mesaj varsa true.
func (p *Pipeline) ShowJumpToLatest() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jumpToLatest
}

// AutoScrollRequested, bekleyen bir otomatik kaydırma isteğini tüketir.
func (p *Pipeline) AutoScrollRequested() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	req := p.scrollReq
	p.scrollReq = false
	return req
}

// mu tutulurken çağrılır.
func (p *Pipeline) appendedLocked() {
	if p.atBottom {
		p.scrollReq = true
	} else {
		p.jumpToLatest = true
	}
}

// ─── Yazma ───

// SetInput, taslak metni günceller. Her tuşta typing=true gider; son
// tuştan TypingIdle sonra typing=false.
func (p *Pipeline) SetInput(text string) {
	p.mu.Lock()
	if p.status == Closed {
		p.mu.Unlock()
		return
	}
	p.input = text
	empty := strings.TrimSpace(text) == ""
	p.mu.Unlock()

	if empty {
		p.endTyping()
		return
	}

	p.mu.Lock()
	p.selfTyping = true
	p.mu.Unlock()
	if p.deps.Channel != nil {
		p.deps.Channel.EmitTyping(p.chatID, true)
	}
	p.stopTyping(p.endTyping)
}

func (p *Pipeline) endTyping() {
	p.mu.Lock()
	was := p.selfTyping && p.status != Closed
	p.selfTyping = false
	p.mu.Unlock()

	if was && p.deps.Channel != nil {
		p.deps.Channel.EmitTyping(p.chatID, false)
	}
}

// Send, metni optimistic olarak ekler ve REST ile gönderir.
//
// Aynı anda tek gönderim olabilir. Başarıda geçici id yerinde server
// id'siyle değişir; hata olursa optimistic mesaj kaldırılır ve girdi
// geri yüklenmez.
//
// Pipeline istek sürerken kapanırsa pkg.ErrClosed döner. Server mesajı
// oluşturduysa mesaj da hata ile birlikte döner; boş mesaj sonucu
// bilinmeyen (iptal edilmiş) bir isteği gösterir.
func (p *Pipeline) Send(ctx context.Context, text string) (models.Message, error) {
	content := strings.TrimSpace(text)

	p.mu.Lock()
	switch {
	case p.status == Closed:
		p.mu.Unlock()
		return models.Message{}, pkg.ErrClosed
	case content == "":
		p.mu.Unlock()
		return models.Message{}, pkg.ErrEmptyMessage
	case p.inFlight != "":
		p.mu.Unlock()
		return models.Message{}, pkg.ErrSendInFlight
	}

	tempID := tempPrefix + p.deps.NewID()
	p.msgs.append(models.Message{
		ID:        tempID,
		ChatID:    p.chatID,
		SenderID:  p.deps.Identity.UserID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
	p.inFlight = tempID
	p.status = Sending
	p.input = ""
	if p.atBottom {
		p.scrollReq = true
	}
	p.mu.Unlock()

	p.notify()
	p.endTyping()

	created, err := p.deps.Gateway.SendMessage(ctx, p.chatID, content)

	p.mu.Lock()
	if p.status == Closed {
		p.mu.Unlock()
		if err == nil {
			return *created, pkg.ErrClosed
		}
		return models.Message{}, pkg.ErrClosed
	}
	p.inFlight = ""
	p.status = Ready

	if err != nil {
		p.msgs.remove(tempID)
		p.mu.Unlock()
		p.notify()
		return models.Message{}, err
	}

	if !p.msgs.rename(tempID, created.ID) {
		// Aynı id zaten geldi (yeniden yükleme): geçiciyi at
		p.msgs.remove(tempID)
	}
	final := *p.msgs.byID[created.ID]
	p.mu.Unlock()

	p.notify()
	return final, nil
}

// ─── Live event'ler ───

func (p *Pipeline) handleEvent(ev ws.Event) {
	switch ev.Op {
	case ws.OpNewMessage:
		var d ws.NewMessageData
		if err := ev.Decode(&d); err != nil {
			p.debugf("%v", err)
			return
		}
		p.onNewMessage(d)
	case ws.OpUserTyping:
		var d ws.UserTypingData
		if err := ev.Decode(&d); err != nil {
			p.debugf("%v", err)
			return
		}
		p.onTyping(d)
	case ws.OpMessagesRead:
		var d ws.MessagesReadData
		if err := ev.Decode(&d); err != nil {
			p.debugf("%v", err)
			return
		}
		if d.ChatID == p.chatID {
			go p.reload()
		}
	}
}

func (p *Pipeline) onNewMessage(d ws.NewMessageData) {
	msg := d.Message
	if msg.ChatID == "" {
		msg.ChatID = d.ChatID
	}
	if msg.ChatID != p.chatID {
		return
	}

	p.mu.Lock()
	// Kendi mesajımız REST yanıtıyla gelir; echo düşürülür.
	if p.status == Closed || msg.AuthorID() == p.deps.Identity.UserID || !p.msgs.append(msg) {
		p.mu.Unlock()
		return
	}
	p.appendedLocked()
	p.mu.Unlock()

	p.notify()
	go p.markReadAsync()
}

func (p *Pipeline) onTyping(d ws.UserTypingData) {
	if d.ChatID != "" && d.ChatID != p.chatID {
		return
	}
	if d.UserID == p.deps.Identity.UserID {
		return
	}

	p.mu.Lock()
	if p.status == Closed {
		p.mu.Unlock()
		return
	}
	if p.peerTimer != nil {
		p.peerTimer.Stop()
		p.peerTimer = nil
	}
	p.peerTyping = d.IsTyping
	if d.IsTyping {
		var timer *time.Timer
		timer = time.AfterFunc(p.deps.TypingTimeout, func() {
			p.mu.Lock()
			if p.peerTimer != timer {
				p.mu.Unlock()
				return
			}
			p.peerTimer = nil
			p.peerTyping = false
			p.mu.Unlock()
			p.notify()
		})
		p.peerTimer = timer
	}
	p.mu.Unlock()

	p.notify()
}

// handleState, yeniden bağlanınca odaya tekrar katılır.
func (p *Pipeline) handleState(s live.State) {
	if s != live.Connected || p.Status() == Closed {
		return
	}
	p.deps.Channel.JoinRoom(p.chatID)
}

// reload, geçmişi sessizce yeniden çeker ve id'ye göre birleştirir.
// Çekim sürerken gelen istekler tek bir ek çekimde birleşir: süren GET
// yeni server state'inden önce başlamış olabilir.
func (p *Pipeline) reload() {
	p.mu.Lock()
	if p.status == Closed {
		p.mu.Unlock()
		return
	}
	if p.reloading {
		p.reloadAgain = true
		p.mu.Unlock()
		return
	}
	p.reloading = true
	p.mu.Unlock()

	for {
		p.reloadOnce()

		p.mu.Lock()
		if !p.reloadAgain || p.status == Closed {
			p.reloading = false
			p.reloadAgain = false
			p.mu.Unlock()
			return
		}
		p.reloadAgain = false
		p.mu.Unlock()
	}
}

func (p *Pipeline) reloadOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	detail, err := p.deps.Gateway.GetChat(ctx, p.chatID)

	p.mu.Lock()
	if p.status == Closed {
		p.mu.Unlock()
		return
	}
	if err != nil {
		p.mu.Unlock()
		p.debugf("silent reload failed: %v", err)
		return
	}
	if p.msgs.merge(detail.Messages) > 0 {
		p.appendedLocked()
	}
	p.mu.Unlock()

	p.notify()
}

// ─── Okundu ───

func (p *Pipeline) markReadAsync() {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	p.markRead(ctx)
}

// markRead, REST ile okundu işaretler ve live channel'a bildirir.
// Hata kullanıcıya yansımaz.
func (p *Pipeline) markRead(ctx context.Context) {
	if p.Status() == Closed {
		return
	}
	if err := p.deps.Gateway.MarkRead(ctx, p.chatID); err != nil {
		p.debugf("mark read failed: %v", err)
	}
	if p.deps.Channel != nil && p.Status() != Closed {
		p.deps.Channel.EmitMarkRead(p.chatID)
	}
}

// ─── Kapanış ───

// Close, odadan ayrılır, abonelikleri bırakır ve timer'ları durdurur.
// Sonradan dönen REST sonuçları uygulanmaz.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		wasTyping := p.selfTyping
		p.status = Closed
		p.selfTyping = false
		p.peerTyping = false
		if p.peerTimer != nil {
			p.peerTimer.Stop()
			p.peerTimer = nil
		}
		subs := p.subs
		p.subs = nil
		p.mu.Unlock()

		p.stopTyping(func() {})
		for _, s := range subs {
			s.Unsubscribe()
		}
		if p.deps.Channel != nil {
			if wasTyping {
				p.deps.Channel.EmitTyping(p.chatID, false)
			}
			p.deps.Channel.LeaveRoom(p.chatID)
		}
		if p.deps.OnClose != nil {
			p.deps.OnClose()
		}
		p.notify()
	})
}

func (p *Pipeline) notify() {
	select {
	case p.updates <- struct{}{}:
	default:
	}
}

func (p *Pipeline) debugf(format string, args ...any) {
	if p.deps.Debug {
		p.deps.Logger.Printf("[conversation] "+format, args...)
	}
}
