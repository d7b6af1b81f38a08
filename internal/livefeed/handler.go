package livefeed

import (
	"net/http"

	"golang.org/x/net/websocket"

	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

type control struct {
	Type string `json:"type"`
}

// Handler streams hub messages to a websocket client. Clients may send
// {"type":"ping"} and receive {"type":"pong"}.
type Handler struct {
	hub    *Hub
	logger *logging.Logger
}

func NewHandler(hub *Hub, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{hub: hub, logger: logger}
}

// ServeHTTP handles GET /admin/bookings/live.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	websocket.Server{
		// Origin is enforced by the CORS layer and the bearer token.
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler:   h.serve,
	}.ServeHTTP(w, r)
}

func (h *Handler) serve(conn *websocket.Conn) {
	messages, cancel := h.hub.Subscribe()
	defer cancel()
	logger := h.logger.WithContext(conn.Request().Context())
	logger.Info("live feed client connected", "subscribers", h.hub.Subscribers())

	send := make(chan any, 1)
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var in control
			if err := websocket.JSON.Receive(conn, &in); err != nil {
				return
			}
			if in.Type == "ping" {
				select {
				case send <- control{Type: "pong"}:
				default:
				}
			}
		}
	}()

	for {
		var out any
		select {
		case <-closed:
			logger.Info("live feed client disconnected")
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			out = msg
		case reply := <-send:
			out = reply
		}
		if err := websocket.JSON.Send(conn, out); err != nil {
			logger.Debug("live feed send failed", "error", err)
			return
		}
	}
}
