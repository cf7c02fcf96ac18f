package channel

import (
	"context"
	"fmt"

	"golang.org/x/net/websocket"

	"github.com/2jz-code/pos-sync/internal/domain"
)

// WebsocketDialer открывает live-канал по websocket с JSON-кодеком.
// URL соединения привязывается к идентичности заказа.
type WebsocketDialer struct {
	// BaseURL — адрес сервера вида ws://host:port.
	BaseURL string
	// Origin требуется протоколом рукопожатия.
	Origin string
	// AuthToken добавляется в query-параметры, если задан.
	AuthToken string
}

// Dial устанавливает websocket-соединение, привязанное к заказу.
func (d *WebsocketDialer) Dial(_ context.Context, identity domain.OrderIdentity) (Conn, error) {
	url := fmt.Sprintf("%s/ws/orders/%s/%s", d.BaseURL, identity.Kind, identity.Value)
	if d.AuthToken != "" {
		url += "?token=" + d.AuthToken
	}

	origin := d.Origin
	if origin == "" {
		origin = "http://localhost/"
	}

	ws, err := websocket.Dial(url, "", origin)
	if err != nil {
		return nil, fmt.Errorf("dial live channel: %w", err)
	}
	return &wsConn{ws: ws}, nil
}

// wsConn адаптирует websocket-соединение к контракту Conn.
type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) Send(msg OutboundMessage) error {
	if err := websocket.JSON.Send(c.ws, msg); err != nil {
		return fmt.Errorf("send live message: %w", err)
	}
	return nil
}

func (c *wsConn) Receive() (InboundMessage, error) {
	var msg InboundMessage
	if err := websocket.JSON.Receive(c.ws, &msg); err != nil {
		return InboundMessage{}, fmt.Errorf("receive live message: %w", err)
	}
	return msg, nil
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}
