// Package chatlist, oturum açmış kullanıcının konuşma listesini tutar.
//
// Aggregator listeyi REST'ten çeker, son aktiviteye göre sıralar ve
// arka planda belirli aralıkla sessizce yeniler. Bir konuşma açıkken
// yenileme Pause ile durdurulur; live channel tekrar Connected olunca
// bir kez yenilenir.
package chatlist

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/akinalp/eventchat/live"
	"github.com/akinalp/eventchat/models"
)

// Lister, GET /chats. gateway.Gateway karşılar.
type Lister interface {
	ListChats(ctx context.Context) ([]models.ChatListItem, error)
}

// Channel, aggregator'ın live channel'dan beklediği tek şey: bağlantı durumu.
type Channel interface {
	SubscribeState(fn func(live.State)) *live.Subscription
}

// Options, aggregator ayarları.
type Options struct {
	Role            models.UserRole
	RefreshInterval time.Duration // 5s
	Logger          *log.Logger
	Debug           bool
}

// Aggregator, konuşma listesinin sahibi.
type Aggregator struct {
	lister  Lister
	channel Channel
	opts    Options

	mu       sync.Mutex
	items    []models.ConversationSummary
	paused   bool
	stopped  bool
	started  bool
	issued   uint64 // başlatılan Load sayısı
	applied  uint64 // uygulanan en yeni Load
	cancel   context.CancelFunc
	stateSub *live.Subscription

	updates chan struct{}
}

// New, aggregator oluşturur. channel nil olabilir.
func New(lister Lister, channel Channel, opts Options) *Aggregator {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Aggregator{
		lister:  lister,
		channel: channel,
		opts:    opts,
		updates: make(chan struct{}, 1),
	}
}

// Load, listeyi çeker ve uygular. Hata çağırana döner; eski liste korunur.
// Eşzamanlı yüklemelerde sadece en son başlatılanın sonucu kalır.
func (a *Aggregator) Load(ctx context.Context) error {
	a.mu.Lock()
	a.issued++
	seq := a.issued
	a.mu.Unlock()

	items, err := a.lister.ListChats(ctx)
	if err != nil {
		return err
	}

	summaries := make([]models.ConversationSummary, 0, len(items))
	for i := range items {
		summaries = append(summaries, items[i].Summarize(a.opts.Role))
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastActivity.After(summaries[j].LastActivity)
	})

	a.mu.Lock()
	if a.stopped || seq < a.applied {
		a.mu.Unlock()
		return nil
	}
	a.applied = seq
	a.items = summaries
	a.mu.Unlock()

	a.notify()
	return nil
}

// Start, arka plan yenilemesini başlatır. İkinci çağrı etkisizdir.
func (a *Aggregator) Start(ctx context.Context) {
	a.mu.Lock()
	if a.started || a.stopped {
		a.mu.Unlock()
		return
	}
	a.started = true
	ctx, a.cancel = context.WithCancel(ctx)
	a.mu.Unlock()

	if a.channel != nil {
		sub := a.channel.SubscribeState(func(s live.State) {
			if s == live.Connected {
				go a.silentLoad(ctx)
			}
		})
		a.mu.Lock()
		a.stateSub = sub
		a.mu.Unlock()
	}

	go a.loop(ctx)
}

func (a *Aggregator) loop(ctx context.Context) {
	ticker := time.NewTicker(a.opts.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.silentLoad(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// silentLoad, pause edilmemişse yeniler; hata kullanıcıya gösterilmez.
func (a *Aggregator) silentLoad(ctx context.Context) {
	if a.Paused() || ctx.Err() != nil {
		return
	}
	if err := a.Load(ctx); err != nil && ctx.Err() == nil && a.opts.Debug {
		a.opts.Logger.Printf("[chatlist] background refresh failed: %v", err)
	}
}

// Pause, arka plan yenilemesini durdurur (konuşma açıldı).
func (a *Aggregator) Pause() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paused = true
}

// Resume, arka plan yenilemesine devam eder (konuşma kapandı).
func (a *Aggregator) Resume() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paused = false
}

func (a *Aggregator) Paused() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.paused
}

// Stop, yenilemeyi ve state aboneliğini sonlandırır. Sonradan gelen
// sonuçlar uygulanmaz.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	a.stopped = true
	cancel, sub := a.cancel, a.stateSub
	a.cancel, a.stateSub = nil, nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	sub.Unsubscribe()
}

// Conversations, son aktiviteye göre sıralı listenin kopyası.
func (a *Aggregator) Conversations() []models.ConversationSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.ConversationSummary(nil), a.items...)
}

// Updates, liste her değiştiğinde sinyal verir. Kaçırılan sinyaller
// birleşir; alıcı Conversations ile güncel hali okur.
func (a *Aggregator) Updates() <-chan struct{} {
	return a.updates
}

func (a *Aggregator) notify() {
	select {
	case a.updates <- struct{}{}:
	default:
	}
}
