package live

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/akinalp/eventchat/pkg"
)

// Conn, manager'ın kullandığı bağlantı yüzeyi. *websocket.Conn doğrudan karşılar.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer, bağlantı kurar. Testlerde fake dialer kullanılır.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// WSDialer, gorilla/websocket tabanlı Dialer.
type WSDialer struct {
	Dialer *websocket.Dialer
}

// Dial, WebSocket handshake'i yapar. Server 401 dönerse hata
// pkg.ErrUnauthorized sarar; manager bu durumda yeniden denemez.
func (d WSDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: live channel rejected credential", pkg.ErrUnauthorized)
		}
		return nil, err
	}
	return conn, nil
}
