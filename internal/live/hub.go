// Package live fans run telemetry out to WebSocket viewers.
package live

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/saveenergy/playertester/internal/logging"
	"github.com/saveenergy/playertester/pkg/player"
	"github.com/saveenergy/playertester/pkg/types"
)

type Hub struct {
	upgrader       websocket.Upgrader
	clients        map[string]map[*websocket.Conn]*clientConn
	completed      map[string]bool
	allowedOrigins []string
	pingInterval   time.Duration
	stopCh         chan struct{}
	stopOnce       sync.Once
	wg             sync.WaitGroup
	mu             sync.RWMutex
}

type clientConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func NewHub() *Hub {
	hub := &Hub{
		clients:      make(map[string]map[*websocket.Conn]*clientConn),
		completed:    make(map[string]bool),
		pingInterval: 30 * time.Second,
		stopCh:       make(chan struct{}),
	}
	hub.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			hub.mu.RLock()
			allowed := append([]string(nil), hub.allowedOrigins...)
			hub.mu.RUnlock()
			return types.AllowedOrigin(r.Header.Get("Origin"), r.Host, allowed)
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	hub.startPingLoop()
	return hub
}

func (h *Hub) SetAllowedOrigins(origins []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.allowedOrigins = origins
}

func (h *Hub) SetPingInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pingInterval = interval
}

// HandleRun serves GET /api/v1/runs/{id}/live.
func (h *Hub) HandleRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if runID == "" {
		http.Error(w, "run ID required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("WebSocket upgrade error",
			logging.F("error", err),
			logging.F("run_id", runID))
		return
	}
	defer conn.Close()

	// Viewers only read for disconnect detection.
	conn.SetReadLimit(4096)

	h.mu.Lock()
	if h.clients[runID] == nil {
		h.clients[runID] = make(map[*websocket.Conn]*clientConn)
	}
	client := &clientConn{conn: conn}
	h.clients[runID][conn] = client
	h.mu.Unlock()

	if err := client.writeJSON(message{
		Type:  "connected",
		RunID: runID,
		Time:  time.Now().Unix(),
	}); err != nil {
		h.removeClient(runID, conn)
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.removeClient(runID, conn)
}

// Sink returns a player.Sink that broadcasts each sample to viewers of runID.
func (h *Hub) Sink(runID string) player.Sink {
	return player.SinkFunc(func(label types.Label, value float64) {
		h.broadcast(runID, message{
			Type:  "sample",
			RunID: runID,
			Label: label,
			Value: &value,
			Time:  time.Now().UnixMilli(),
		})
	})
}

// Complete sends the run result to current viewers. Only the first call per
// run is delivered.
func (h *Hub) Complete(runID string, res types.Result) {
	h.mu.Lock()
	if h.completed[runID] || len(h.clients[runID]) == 0 {
		h.mu.Unlock()
		return
	}
	h.completed[runID] = true
	h.mu.Unlock()

	h.broadcast(runID, message{
		Type:   "complete",
		RunID:  runID,
		Result: &res,
		Time:   time.Now().UnixMilli(),
	})
}

// Viewers reports how many connections watch runID.
func (h *Hub) Viewers(runID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[runID])
}

func (h *Hub) broadcast(runID string, msg message) {
	h.mu.RLock()
	clients := h.clients[runID]
	if len(clients) == 0 {
		h.mu.RUnlock()
		return
	}
	clientList := make([]*clientConn, 0, len(clients))
	for _, client := range clients {
		clientList = append(clientList, client)
	}
	h.mu.RUnlock()

	data, err := json.Marshal(msg)
	if err != nil {
		logging.Warn("Live message marshal failed",
			logging.F("run_id", runID),
			logging.F("error", err))
		return
	}

	for _, client := range clientList {
		if err := client.writeMessage(websocket.TextMessage, data); err != nil {
			h.removeClient(runID, client.conn)
			client.conn.Close()
		}
	}
}

func (h *Hub) startPingLoop() {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		interval := h.getPingInterval()
		ticker := time.NewTicker(interval)
		defer func() { ticker.Stop() }()

		for {
			select {
			case <-h.stopCh:
				return
			case <-ticker.C:
				h.pingClients()
				next := h.getPingInterval()
				if next != interval {
					ticker.Stop()
					interval = next
					ticker = time.NewTicker(interval)
				}
			}
		}
	}()
}

func (h *Hub) Close() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
	})
	h.wg.Wait()
}

func (h *Hub) getPingInterval() time.Duration {
	h.mu.RLock()
	interval := h.pingInterval
	h.mu.RUnlock()
	if interval <= 0 {
		return 30 * time.Second
	}
	return interval
}

func (h *Hub) pingClients() {
	type clientRef struct {
		runID  string
		client *clientConn
	}

	var refs []clientRef
	h.mu.RLock()
	for runID, runClients := range h.clients {
		for _, client := range runClients {
			refs = append(refs, clientRef{runID: runID, client: client})
		}
	}
	h.mu.RUnlock()

	for _, ref := range refs {
		if err := ref.client.writeMessage(websocket.PingMessage, nil); err != nil {
			h.removeClient(ref.runID, ref.client.conn)
			ref.client.conn.Close()
		}
	}
}

func (h *Hub) removeClient(runID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[runID] == nil {
		return
	}
	delete(h.clients[runID], conn)
	if len(h.clients[runID]) == 0 {
		delete(h.clients, runID)
		delete(h.completed, runID)
	}
}

type message struct {
	Type   string        `json:"type"`
	RunID  string        `json:"run_id"`
	Label  types.Label   `json:"label,omitempty"`
	Value  *float64      `json:"value,omitempty"`
	Result *types.Result `json:"result,omitempty"`
	Time   int64         `json:"time"`
}

func (c *clientConn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteJSON(v)
}

func (c *clientConn) writeMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(messageType, data)
}
