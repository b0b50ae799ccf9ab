package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"vanna/pkg/errors"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Browser dashboards connect cross-origin; auth happens at the broker.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type controlFrame struct {
	Type string `json:"type"`
}

type loginPayload struct {
	APIKey     string `json:"api_key"`
	ClientCode string `json:"client_code"`
	Password   string `json:"password"`
	TOTPToken  string `json:"totp_token"`
}

type loginReply struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// handleWS upgrades the connection and runs the client's read pump. Pushes
// arrive through the hub from the snapshot feeder; this goroutine only
// answers keepalives and notices disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	clientID := r.PathValue("client")
	if symbol == "" || clientID == "" {
		writeError(w, http.StatusBadRequest, "symbol and client are required", nil)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("WebSocket upgrade failed", "client", clientID, "error", err)
		return
	}

	sub := s.hub.Subscribe(clientID, symbol, conn)
	defer s.hub.Unsubscribe(sub.ID)

	s.feeder.Ensure(symbol)

	pong, _ := json.Marshal(map[string]string{"type": "pong"})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame controlFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			continue
		}
		if frame.Type == "ping" {
			if err := sub.enqueue(pong); err != nil {
				return
			}
		}
	}
}

// handleOptionChain is the pull fallback: one synchronous snapshot
func (s *Server) handleOptionChain(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")

	ctx, cancel := context.WithTimeout(r.Context(), s.assembleTimeout)
	defer cancel()

	snapshot, err := s.assembler.Assemble(ctx, symbol)
	if err != nil {
		switch {
		case errors.Is(err, errors.ErrUnknownSeries):
			writeError(w, http.StatusNotFound, "unknown option series", err)
		case errors.Is(err, errors.ErrNoExpiryAvailable), errors.Is(err, errors.ErrNoSpotPrice):
			writeError(w, http.StatusServiceUnavailable, "option chain temporarily unavailable", err)
		default:
			writeError(w, http.StatusInternalServerError, "option chain assembly failed", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

// handleSpot returns the current spot price for an underlying
func (s *Server) handleSpot(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")

	spot, err := s.assembler.Spot(r.Context(), symbol)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "spot price unavailable", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":     symbol,
		"spot_price": spot,
	})
}

// handleLogin performs the broker login handshake and caches the session
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid login payload", err)
		return
	}
	if req.ClientCode == "" || req.Password == "" {
		writeJSON(w, http.StatusOK, loginReply{Success: false, Message: "Invalid credentials"})
		return
	}

	sess, err := s.auth.Login(r.Context(), req.ClientCode, req.Password, req.TOTPToken)
	if err != nil {
		if errors.Is(err, errors.ErrAuth) {
			writeJSON(w, http.StatusOK, loginReply{Success: false, Message: err.Error()})
			return
		}
		writeError(w, http.StatusBadGateway, "broker login failed", err)
		return
	}

	if err := s.sessions.Save(r.Context(), sess); err != nil {
		s.log.Warnw("Session cache write failed", "client", sess.ClientCode, "error", err)
	}

	writeJSON(w, http.StatusOK, loginReply{
		Success: true,
		Message: "Login successful",
		Data: map[string]string{
			"client_code": sess.ClientCode,
			"feed_token":  sess.FeedToken,
		},
	})
}

// handleSession returns the cached broker session for a client
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	clientCode := r.PathValue("client")

	sess, err := s.sessions.Get(r.Context(), clientCode)
	if err != nil {
		if errors.Is(err, errors.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "no active session", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "session lookup failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    sess,
	})
}

// handleHealth reports tick store reachability and the live audience size
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	storeStatus := "connected"
	if err := s.store.Healthy(ctx); err != nil {
		storeStatus = "error"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":               "healthy",
		"tick_store":           storeStatus,
		"active_subscriptions": s.hub.ActiveSubscriptions(),
		"active_clients":       s.hub.ClientCount(),
		"timestamp":            time.Now(),
	})
}

// handleRoot is the service info endpoint
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "F&O option chain API",
		"version": s.version,
		"status":  "running",
		"health":  "/health",
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	body := map[string]string{"error": message}
	if err != nil {
		body["detail"] = err.Error()
	}
	writeJSON(w, status, body)
}
