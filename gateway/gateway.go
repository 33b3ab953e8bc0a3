// Package gateway, client core'un REST tarafı: konuşma listesi, konuşma
// açma, mesaj gönderme/çekme ve okundu işaretleme.
//
// Backend her yanıtı {success, data, error} zarfıyla döner; HTTPGateway
// zarfı açar ve HTTP status'u pkg sentinel error'larına çevirir:
//
//	_, err := gw.GetChat(ctx, id)
//	if errors.Is(err, pkg.ErrNotFound) { ... }
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/akinalp/eventchat/models"
	"github.com/akinalp/eventchat/pkg"
)

// Gateway, core bileşenlerinin REST bağımlılığı. Testlerde fake ile değiştirilir.
type Gateway interface {
	ListChats(ctx context.Context) ([]models.ChatListItem, error)
	// StartChat, vendorID nil ise support konuşmasını bulur veya oluşturur.
	StartChat(ctx context.Context, vendorID *string) (*models.ChatDetail, error)
	GetChat(ctx context.Context, chatID string) (*models.ChatDetail, error)
	SendMessage(ctx context.Context, chatID, content string) (*models.Message, error)
	MarkRead(ctx context.Context, chatID string) error
	Me(ctx context.Context) (*models.User, error)
}

// TokenFunc, her istekte güncel bearer token'ı döner. Boş string
// "oturum yok" demektir; istek hiç gönderilmez.
type TokenFunc func() string

// StaticToken, sabit bir token için TokenFunc.
func StaticToken(token string) TokenFunc {
	return func() string { return token }
}

// HTTPGateway, Gateway'in net/http implementasyonu.
type HTTPGateway struct {
	baseURL string
	token   TokenFunc
	client  *http.Client
}

// Option, HTTPGateway ayarı.
type Option func(*HTTPGateway)

// WithHTTPClient, varsayılan http.Client'ı değiştirir.
func WithHTTPClient(c *http.Client) Option {
	return func(g *HTTPGateway) { g.client = c }
}

// New, baseURL (ör: "http://localhost:9090/api") için gateway oluşturur.
func New(baseURL string, timeout time.Duration, token TokenFunc, opts ...Option) *HTTPGateway {
	g := &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (g *HTTPGateway) ListChats(ctx context.Context) ([]models.ChatListItem, error) {
	var chats []models.ChatListItem
	if err := g.do(ctx, http.MethodGet, "/chats", nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

func (g *HTTPGateway) StartChat(ctx context.Context, vendorID *string) (*models.ChatDetail, error) {
	var chat models.ChatDetail
	if err := g.do(ctx, http.MethodPost, "/chats/start", models.StartChatRequest{VendorID: vendorID}, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

func (g *HTTPGateway) GetChat(ctx context.Context, chatID string) (*models.ChatDetail, error) {
	var chat models.ChatDetail
	if err := g.do(ctx, http.MethodGet, "/chats/"+url.PathEscape(chatID), nil, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

func (g *HTTPGateway) SendMessage(ctx context.Context, chatID, content string) (*models.Message, error) {
	var msg models.Message
	path := "/chats/" + url.PathEscape(chatID) + "/messages"
	if err := g.do(ctx, http.MethodPost, path, models.CreateMessageRequest{Content: content}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (g *HTTPGateway) MarkRead(ctx context.Context, chatID string) error {
	return g.do(ctx, http.MethodPut, "/chats/"+url.PathEscape(chatID)+"/read", nil, nil)
}

func (g *HTTPGateway) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := g.do(ctx, http.MethodGet, "/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// do, isteği gönderir ve zarfı out'a açar. out nil ise data yok sayılır.
func (g *HTTPGateway) do(ctx context.Context, method, path string, body, out any) error {
	token := ""
	if g.token != nil {
		token = strings.TrimSpace(g.token())
	}
	if token == "" {
		return pkg.ErrNotAuthenticated
	}
	return g.send(ctx, method, path, token, body, out)
}

// Login, kullanıcı adı/şifre ile access token alır. Token gerektirmeyen
// tek çağrı; Gateway arayüzünde değildir, sadece CLI kullanır.
func (g *HTTPGateway) Login(ctx context.Context, username, password string) (*models.LoginResponse, error) {
	var resp models.LoginResponse
	req := models.LoginRequest{Username: username, Password: password}
	if err := g.send(ctx, http.MethodPost, "/auth/login", "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (g *HTTPGateway) send(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%w: %s %s: %s", pkg.ErrorForStatus(resp.StatusCode), method, path, msg)
	}
	if decodeErr != nil && !errors.Is(decodeErr, io.EOF) {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, decodeErr)
	}
	if !env.Success && env.Error != "" {
		return fmt.Errorf("%w: %s %s: %s", pkg.ErrInternal, method, path, env.Error)
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s data: %w", method, path, err)
	}
	return nil
}
