package main

import (
	"context"
	"errors"
	"log"

	"github.com/akinalp/eventchat/config"
	"github.com/akinalp/eventchat/models"
	"github.com/akinalp/eventchat/pkg"
	"github.com/akinalp/eventchat/pkg/ratelimit"
	"github.com/akinalp/eventchat/services"
	"github.com/akinalp/eventchat/ws"
)

// RateLimiters, spam ve brute-force limiter'ları.
type RateLimiters struct {
	Message *ratelimit.Limiter
	Login   *ratelimit.Limiter
}

func initRateLimiters(cfg *config.Config) *RateLimiters {
	rl := cfg.RateLimit
	return &RateLimiters{
		Message: ratelimit.New(rl.MessageMax, rl.MessageWindow, rl.MessageCooldown),
		Login:   ratelimit.New(rl.LoginMax, rl.LoginWindow, rl.LoginCooldown),
	}
}

// Stop, limiter cleanup goroutine'lerini durdurur.
func (l *RateLimiters) Stop() {
	l.Message.Stop()
	l.Login.Stop()
}

// Services, tüm service instance'larını tutan container struct.
type Services struct {
	Auth      services.AuthService
	Chat      services.ChatService
	ReadState services.ReadStateService
}

func initServices(repos *Repositories, hub ws.Broadcaster, limiters *RateLimiters, cfg *config.Config) *Services {
	chat := services.NewChatService(repos.User, repos.Chat, hub, limiters.Message)
	return &Services{
		Auth:      services.NewAuthService(repos.User, cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry, 0),
		Chat:      chat,
		ReadState: services.NewReadStateService(repos.ReadState, chat, hub),
	}
}

// demoAccounts, DATABASE_SEED_DEMO=true iken oluşturulan geliştirme hesapları.
var demoAccounts = []models.RegisterRequest{
	{Username: "customer", Password: "password123", DisplayName: "Demo Customer", Role: models.RoleUser},
	{Username: "vendor", Password: "password123", DisplayName: "Bloom Flowers", Role: models.RoleVendor},
	{Username: "support", Password: "password123", DisplayName: "Support Team", Role: models.RoleSupport},
}

// seedDemoAccounts, eksik demo hesaplarını oluşturur; var olanlara dokunmaz.
func seedDemoAccounts(ctx context.Context, auth services.AuthService) {
	for _, acc := range demoAccounts {
		req := acc
		if _, err := auth.Register(ctx, &req); err != nil {
			if errors.Is(err, pkg.ErrAlreadyExists) {
				continue
			}
			log.Printf("[seed] failed to create %s: %v", acc.Username, err)
			continue
		}
		log.Printf("[seed] created demo account %s (%s)", acc.Username, acc.Role)
	}
}
