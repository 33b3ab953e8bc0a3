// Package identity, oturum açmış kullanıcının kimliğini (user id + bearer
// token) core bileşenlerine sağlar.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/akinalp/eventchat/models"
	"github.com/akinalp/eventchat/pkg"
	"github.com/akinalp/eventchat/pkg/cache"
)

// Resolver, core'un kimlik kaynağı. Token yoksa pkg.ErrNotAuthenticated döner.
type Resolver interface {
	Current(ctx context.Context) (models.Identity, error)
}

// MeFetcher, GET /auth/me çağrısı. gateway.HTTPGateway karşılar; gateway
// token'ı TokenResolver.Token üzerinden okur.
type MeFetcher interface {
	Me(ctx context.Context) (*models.User, error)
}

// TokenResolver, elindeki bearer token için kullanıcıyı çözer.
//
// Kullanıcı /auth/me'den alınır ve token bazında TTL cache'lenir. Endpoint
// geçici olarak erişilemezse token'ın imzası doğrulanmadan okunan
// claim'leri kullanılır; 401 ise token geçersizdir ve hata döner.
type TokenResolver struct {
	mu    sync.RWMutex
	token string

	me     MeFetcher
	cache  *cache.TTLCache[string, models.Identity]
	logger *log.Logger
}

// NewTokenResolver, resolver oluşturur. me nil ise sadece claim'ler kullanılır.
func NewTokenResolver(token string, me MeFetcher, ttl time.Duration, logger *log.Logger) *TokenResolver {
	if logger == nil {
		logger = log.Default()
	}
	return &TokenResolver{
		token:  strings.TrimSpace(token),
		me:     me,
		cache:  cache.New[string, models.Identity](ttl, ttl),
		logger: logger,
	}
}

// SetToken, oturum açma/kapama. Boş string oturumu kapatır.
func (r *TokenResolver) SetToken(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.token = strings.TrimSpace(token)
}

// Token, güncel bearer token. gateway.TokenFunc olarak verilir.
func (r *TokenResolver) Token() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.token
}

// Current, güncel kimliği döner.
func (r *TokenResolver) Current(ctx context.Context) (models.Identity, error) {
	token := r.Token()
	if token == "" {
		return models.Identity{}, pkg.ErrNotAuthenticated
	}

	if id, ok := r.cache.Get(token); ok {
		return id, nil
	}

	if r.me != nil {
		user, err := r.me.Me(ctx)
		switch {
		case err == nil:
			id := models.Identity{UserID: user.ID, Role: user.Role, Token: token}
			r.cache.Set(token, id)
			return id, nil
		case errors.Is(err, pkg.ErrUnauthorized), errors.Is(err, pkg.ErrNotAuthenticated):
			return models.Identity{}, err
		case ctx.Err() != nil:
			return models.Identity{}, ctx.Err()
		default:
			r.logger.Printf("[identity] /auth/me unavailable, falling back to token claims: %v", err)
		}
	}

	// Fallback sonucu cache'lenmez: bir sonraki çağrı /auth/me'yi tekrar dener.
	return claimsIdentity(token)
}

// Close, cache cleanup goroutine'ini durdurur.
func (r *TokenResolver) Close() {
	r.cache.Close()
}

// claimsIdentity, JWT payload'ından kimlik çıkarır. İmza doğrulanmaz:
// doğrulama backend'in işidir, burada sadece user id okunur.
func claimsIdentity(token string) (models.Identity, error) {
	claims := &models.TokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return models.Identity{}, fmt.Errorf("%w: unreadable token: %v", pkg.ErrUnauthorized, err)
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return models.Identity{}, fmt.Errorf("%w: token carries no user id", pkg.ErrUnauthorized)
	}
	return models.Identity{UserID: userID, Role: claims.Role, Token: token}, nil
}
