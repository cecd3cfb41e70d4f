package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/maruaican/Quick-Folder-Deleter/internal/events"
)

// Upgrade switches the request to a WebSocket connection
func Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return upgrader.Upgrade(w, r, nil)
}

// ServeEvents writes every event of evs as one text message and finishes with
// a normal close frame once evs is closed. cancel is called as soon as the
// peer goes away so the producer stops waiting for this consumer.
func ServeEvents(conn *websocket.Conn, evs <-chan events.Event, cancel context.CancelFunc) error {
	return serveEvents(conn, evs, cancel, pingPeriod)
}

func serveEvents(conn *websocket.Conn, evs <-chan events.Event, cancel context.CancelFunc, ping time.Duration) error {
	defer conn.Close()
	defer cancel()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		defer cancel()
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(ping)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			return nil

		case e, ok := <-evs:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
				return conn.WriteMessage(websocket.CloseMessage, msg)
			}
			data, err := e.Encode()
			if err != nil {
				return err
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return err
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}
