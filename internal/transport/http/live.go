package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"courtside/internal/conversation"
	"courtside/internal/domain"
	"courtside/internal/feed"
	"courtside/internal/observability/middleware"
	"courtside/internal/realtime"

	"github.com/gorilla/websocket"
)

const (
	liveReadTimeout  = 60 * time.Second
	liveWriteTimeout = 10 * time.Second
	livePingInterval = 20 * time.Second
)

type liveFrame struct {
	Type  string `json:"type"`
	Items any    `json:"items,omitempty"`
	Error string `json:"error,omitempty"`
}

type liveRequest struct {
	Content string `json:"content"`
}

// liveConn serializes writes; gorilla allows one concurrent writer.
type liveConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *liveConn) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return w.Close()
}

func (c *liveConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func (c *liveConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.conn.Close()
}

func (h *handler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkOrigin,
	}
}

func (h *handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range originsIfSet(h.CORSOrigins) {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

type liveRoute[T any] struct {
	key    string
	filter feed.Filter
	load   func(ctx context.Context) ([]T, error)
	send   func(ctx context.Context, content string) error
}

// serveLive mounts a conversation view for the lifetime of one websocket.
// Every history the view delivers is pushed as a "messages" frame; text
// frames from the client are sent as new messages.
func serveLive[T any](h *handler, w http.ResponseWriter, r *http.Request, route liveRoute[T]) {
	log := middleware.Logger(r.Context(), h.logger)
	up := h.upgrader()
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		log.Debug("websocket upgrade failed", "error", err)
		return
	}
	conn := &liveConn{conn: ws}
	defer conn.close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	syncer := realtime.New(h.Feed, h.Realtime)
	defer syncer.Close()

	view := conversation.New(syncer, conversation.Config[T]{
		Key:    route.key,
		Filter: route.filter,
		Load:   route.load,
		OnUpdate: func(items []T) {
			if err := conn.write(liveFrame{Type: "messages", Items: items}); err != nil {
				log.Debug("live push failed", "key", route.key, "error", err)
			}
		},
		Logger: log,
	})
	if err := view.Mount(ctx, identity(r)); err != nil {
		_, msg := classify(err)
		_ = conn.write(liveFrame{Type: "error", Error: msg})
		return
	}
	defer view.Unmount()

	_ = ws.SetReadDeadline(time.Now().Add(liveReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(liveReadTimeout))
	})
	go func() {
		t := time.NewTicker(livePingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := conn.ping(); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	for {
		var req liveRequest
		if err := ws.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("live read ended", "key", route.key, "error", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(liveReadTimeout))
		err := view.Send(ctx, func(ctx context.Context) error { return route.send(ctx, req.Content) })
		if err != nil {
			_, msg := classify(err)
			_ = conn.write(liveFrame{Type: "error", Error: msg})
		}
	}
}

func (h *handler) chatLive(w http.ResponseWriter, r *http.Request) {
	chatID, err := uuidParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id := identity(r)
	if _, err := h.Services.Chats.Get(r.Context(), id, chatID); err != nil {
		h.writeError(w, r, err)
		return
	}
	serveLive(h, w, r, liveRoute[domain.Message]{
		key:    "chat:" + chatID.String(),
		filter: feed.Filter{Table: feed.TableMessages, ConversationID: chatID},
		load: func(ctx context.Context) ([]domain.Message, error) {
			return h.Services.Chats.Messages(ctx, id, chatID)
		},
		send: func(ctx context.Context, content string) error {
			_, err := h.Services.Chats.Send(ctx, id, chatID, content)
			return err
		},
	})
}
