// Package session, client core'un sahibi: kimlik değiştiğinde live
// channel'ı açar/kapatır, konuşma listesini ve açık konuşmayı yönetir.
//
// Process başına tek Controller ve dolayısıyla tek live.Manager olur.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/akinalp/eventchat/chatlist"
	"github.com/akinalp/eventchat/config"
	"github.com/akinalp/eventchat/conversation"
	"github.com/akinalp/eventchat/gateway"
	"github.com/akinalp/eventchat/identity"
	"github.com/akinalp/eventchat/live"
	"github.com/akinalp/eventchat/models"
	"github.com/akinalp/eventchat/pkg"
)

// Options, Controller bağımlılıkları. Gateway ve Dialer testlerde değiştirilir.
type Options struct {
	Config  config.ClientConfig
	Gateway gateway.Gateway
	Dialer  live.Dialer
	Logger  *log.Logger
}

// Controller, oturumun sahibi.
type Controller struct {
	cfg    config.ClientConfig
	logger *log.Logger

	gw       gateway.Gateway
	resolver *identity.TokenResolver
	live     *live.Manager

	mu       sync.Mutex
	identity models.Identity
	chats    *chatlist.Aggregator
	open     *conversation.Pipeline
}

// New, Controller oluşturur. Oturum SignIn ile açılır.
func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	c := &Controller{cfg: opts.Config, logger: logger}

	c.gw = opts.Gateway
	if c.gw == nil {
		c.gw = gateway.New(opts.Config.APIBaseURL, opts.Config.RequestTimeout, func() string {
			return c.resolver.Token()
		})
	}
	c.resolver = identity.NewTokenResolver("", c.gw, opts.Config.IdentityTTL, logger)

	c.live = live.New(live.Options{
		URLs:              opts.Config.LiveURLs,
		InitialBackoff:    opts.Config.ReconnectInitial,
		MaxBackoff:        opts.Config.ReconnectMax,
		MaxAttempts:       opts.Config.ReconnectAttempts,
		HeartbeatInterval: opts.Config.HeartbeatInterval,
		Dialer:            opts.Dialer,
		Logger:            logger,
		Debug:             opts.Config.Debug,
	})
	return c
}

// SignIn, token'la oturum açar: kimliği çözer, live channel'ı açar ve
// konuşma listesinin arka plan yenilemesini başlatır. Açık bir oturum
// varsa önce tamamen kapatılır.
func (c *Controller) SignIn(ctx context.Context, token string) (models.Identity, error) {
	c.SignOut()

	c.resolver.SetToken(token)
	id, err := c.resolver.Current(ctx)
	if err != nil {
		c.resolver.SetToken("")
		return models.Identity{}, fmt.Errorf("sign in failed: %w", err)
	}

	if err := c.live.Open(ctx, id); err != nil {
		c.resolver.SetToken("")
		return models.Identity{}, fmt.Errorf("failed to open live channel: %w", err)
	}

	chats := chatlist.New(c.gw, c.live, chatlist.Options{
		Role:            id.Role,
		RefreshInterval: c.cfg.RefreshInterval,
		Logger:          c.logger,
		Debug:           c.cfg.Debug,
	})
	chats.Start(context.Background())

	c.mu.Lock()
	c.identity = id
	c.chats = chats
	c.mu.Unlock()

	c.logger.Printf("[session] signed in as %s (%s)", id.UserID, id.Role)
	return id, nil
}

// SignOut, açık konuşmayı, listeyi ve live channel'ı kapatır.
// Oturum yoksa etkisizdir.
func (c *Controller) SignOut() {
	c.mu.Lock()
	open, chats := c.open, c.chats
	wasSignedIn := c.identity.HasCredential()
	c.open, c.chats = nil, nil
	c.identity = models.Identity{}
	c.mu.Unlock()

	if open != nil {
		open.Close()
	}
	if chats != nil {
		chats.Stop()
	}
	c.live.Close()
	c.resolver.SetToken("")

	if wasSignedIn {
		c.logger.Printf("[session] signed out")
	}
}

// Identity, oturum açık değilse ok=false döner.
func (c *Controller) Identity() (models.Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity, c.identity.HasCredential()
}

// Chats, oturumun konuşma listesi. Oturum yoksa nil.
func (c *Controller) Chats() *chatlist.Aggregator {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chats
}

// Live, process'in tek live channel manager'ı.
func (c *Controller) Live() *live.Manager {
	return c.live
}

// OpenConversation, konuşmayı açar ve liste yenilemesini duraklatır.
// Dönen pipeline kapatılınca yenileme devam eder. Aynı anda tek konuşma
// açık olur; öncekisi kapatılır.
func (c *Controller) OpenConversation(ctx context.Context, target conversation.Target) (*conversation.Pipeline, error) {
	c.mu.Lock()
	id, chats, prev := c.identity, c.chats, c.open
	c.open = nil
	c.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	if !id.HasCredential() || chats == nil {
		return nil, pkg.ErrNotAuthenticated
	}

	chats.Pause()
	p, err := conversation.Open(ctx, conversation.Deps{
		Gateway:       c.gw,
		Channel:       c.live,
		Identity:      id,
		TypingIdle:    c.cfg.TypingIdle,
		TypingTimeout: c.cfg.TypingTimeout,
		OnClose:       chats.Resume,
		Logger:        c.logger,
		Debug:         c.cfg.Debug,
	}, target)
	if err != nil {
		chats.Resume()
		return nil, err
	}

	c.mu.Lock()
	if c.chats != chats {
		// Open sürerken oturum kapandı
		c.mu.Unlock()
		p.Close()
		return nil, pkg.ErrClosed
	}
	c.open = p
	c.mu.Unlock()

	return p, nil
}

// Close, oturumu kapatır ve resolver cache'ini durdurur.
func (c *Controller) Close() {
	c.SignOut()
	c.resolver.Close()
}
