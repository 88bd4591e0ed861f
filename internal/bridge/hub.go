// Package bridge connects the harness to a player running in a browser page.
// The page dials GET /bridge, receives commands and streams player and media
// events back; a Page adapts that connection to player.Factory.
package bridge

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/saveenergy/playertester/internal/logging"
	"github.com/saveenergy/playertester/pkg/errors"
	"github.com/saveenergy/playertester/pkg/types"
)

const (
	defaultPingInterval   = 30 * time.Second
	defaultCommandTimeout = 10 * time.Second
	maxFrameSize          = 1 << 20
)

// Hub accepts player page connections. Only one page is active at a time;
// a newer connection replaces the older one.
type Hub struct {
	upgrader       websocket.Upgrader
	allowedOrigins []string
	pingInterval   time.Duration
	commandTimeout time.Duration
	logger         *logging.Logger

	mu      sync.RWMutex
	current *Page
	changed chan struct{}

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewHub() *Hub {
	h := &Hub{
		pingInterval:   defaultPingInterval,
		commandTimeout: defaultCommandTimeout,
		logger:         logging.NewLogger("bridge"),
		changed:        make(chan struct{}),
		stopCh:         make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			h.mu.RLock()
			allowed := append([]string(nil), h.allowedOrigins...)
			h.mu.RUnlock()
			return types.AllowedOrigin(r.Header.Get("Origin"), r.Host, allowed)
		},
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	h.startPingLoop()
	return h
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

// SetCommandTimeout bounds commands issued without a caller deadline.
func (h *Hub) SetCommandTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commandTimeout = timeout
}

// HandleBridge upgrades the request and serves the page until it disconnects.
func (h *Hub) HandleBridge(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade error", logging.F("error", err))
		return
	}
	conn.SetReadLimit(maxFrameSize)

	h.mu.Lock()
	page := newPage(conn, h.commandTimeout, h.logger)
	prev := h.current
	h.current = page
	close(h.changed)
	h.changed = make(chan struct{})
	h.mu.Unlock()

	if prev != nil {
		h.logger.Info("Player page replaced")
		prev.close(errors.ErrBridgeDisconnected(nil))
	}
	h.logger.Info("Player page connected", logging.F("remote", r.RemoteAddr))

	page.serve()

	h.mu.Lock()
	if h.current == page {
		h.current = nil
	}
	h.mu.Unlock()
	h.logger.Info("Player page disconnected", logging.F("remote", r.RemoteAddr))
}

// Page returns the active page, or nil.
func (h *Hub) Page() *Page {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.current != nil && h.current.Err() == nil {
		return h.current
	}
	return nil
}

// WaitForPage blocks until a page is connected or ctx is done.
func (h *Hub) WaitForPage(ctx context.Context) (*Page, error) {
	for {
		h.mu.RLock()
		page := h.current
		changed := h.changed
		h.mu.RUnlock()
		if page != nil && page.Err() == nil {
			return page, nil
		}

		select {
		case <-changed:
		case <-h.stopCh:
			return nil, errors.ErrPlayerUnavailable("bridge closed")
		case <-ctx.Done():
			return nil, errors.ErrPlayerUnavailable("no player page connected: " + ctx.Err().Error())
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
				if page := h.Page(); page != nil {
					if err := page.ping(); err != nil {
						page.close(errors.ErrBridgeDisconnected(err))
					}
				}
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

func (h *Hub) getPingInterval() time.Duration {
	h.mu.RLock()
	interval := h.pingInterval
	h.mu.RUnlock()
	if interval <= 0 {
		return defaultPingInterval
	}
	return interval
}

// Close disconnects the active page and stops the ping loop.
func (h *Hub) Close() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
	})
	h.wg.Wait()

	h.mu.Lock()
	page := h.current
	h.current = nil
	h.mu.Unlock()
	if page != nil {
		page.close(errors.ErrBridgeDisconnected(nil))
	}
}
