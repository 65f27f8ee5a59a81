package http

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/domain"
	"github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/quiz"
)

// WSHandler exposes a read-only websocket feed of a chat's leaderboard, for
// projecting live standings onto a screen while the quiz runs in Telegram.
type WSHandler struct {
	engine   *quiz.Engine
	upgrader websocket.Upgrader
}

func NewWSHandler(engine *quiz.Engine) *WSHandler {
	return &WSHandler{
		engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type outboundMessage struct {
	Type    string             `json:"type"`
	Payload domain.Leaderboard `json:"payload"`
}

// ServeWatch upgrades the request and streams leaderboard snapshots until
// the client disconnects.
func (h *WSHandler) ServeWatch(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(r.URL.Query().Get("chatId"), 10, 64)
	if err != nil {
		http.Error(w, "missing or invalid chatId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.engine.Watch(chatID)
	defer cancel()

	done := make(chan struct{})

	// The read loop exists only to notice the client going away.
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(outboundMessage{Type: "leaderboard", Payload: update}); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		case <-done:
			return
		}
	}
}
