package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/saveenergy/playertester/internal/logging"
	"github.com/saveenergy/playertester/pkg/errors"
	"github.com/saveenergy/playertester/pkg/player"
	"github.com/saveenergy/playertester/pkg/types"
)

const writeTimeout = 5 * time.Second

type reply struct {
	err error
}

type pendingCall struct {
	method string
	ch     chan reply
}

// Page is one connected player page. It implements player.Factory; the
// players it builds and its media element are proxies whose reads serve the
// last snapshot the page reported.
type Page struct {
	conn           *websocket.Conn
	commandTimeout time.Duration
	logger         *logging.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int64
	pending map[int64]pendingCall
	tracks  []types.VariantTrack
	media   mediaSnapshot
	agent   string
	err     error

	playerEvents player.Emitter
	mediaEvents  player.Emitter
	events       *eventQueue

	done      chan struct{}
	closeOnce sync.Once
}

func newPage(conn *websocket.Conn, commandTimeout time.Duration, logger *logging.Logger) *Page {
	return &Page{
		conn:           conn,
		commandTimeout: commandTimeout,
		logger:         logger,
		pending:        make(map[int64]pendingCall),
		media:          mediaSnapshot{PlaybackRate: 1},
		events:         newEventQueue(),
		done:           make(chan struct{}),
	}
}

// Err returns the reason the page disconnected, or nil while it is live.
func (p *Page) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Done is closed when the page disconnects.
func (p *Page) Done() <-chan struct{} { return p.done }

// Agent is the user agent string the page announced, if any.
func (p *Page) Agent() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.agent
}

// Media returns the page's media element.
func (p *Page) Media() player.MediaElement { return &remoteMedia{page: p} }

func (p *Page) InstallShims(ctx context.Context) error {
	return p.call(ctx, methodInstallShims, nil)
}

func (p *Page) NewPlayer(ctx context.Context, media player.MediaElement) (player.Player, error) {
	if err := p.call(ctx, methodCreatePlayer, nil); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.tracks = nil
	p.mu.Unlock()
	return &remotePlayer{page: p}, nil
}

// serve runs the read loop and the event dispatcher until the connection
// drops or close is called.
func (p *Page) serve() {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.dispatch()
	}()

	var readErr error
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		msg, err := decodeInbound(data)
		if err != nil {
			p.logger.Warn("Dropping malformed bridge frame", logging.F("error", err))
			continue
		}
		p.handle(msg)
	}

	p.close(errors.ErrBridgeDisconnected(readErr))
	wg.Wait()
}

func (p *Page) handle(msg inboundMessage) {
	switch msg.Type {
	case typeReply:
		p.mu.Lock()
		pc, ok := p.pending[msg.ID]
		delete(p.pending, msg.ID)
		p.mu.Unlock()
		if !ok {
			p.logger.Debug("Reply for unknown command", logging.F("id", msg.ID))
			return
		}
		var err error
		if msg.Error != "" {
			err = errors.ErrCommandFailed(pc.method, msg.Error)
		}
		pc.ch <- reply{err: err}
	case typeEvent:
		p.mu.Lock()
		if msg.Tracks != nil {
			p.tracks = msg.Tracks
		}
		if msg.Media != nil {
			p.media = *msg.Media
		}
		p.mu.Unlock()
		if msg.Name != "" && msg.Name != eventState {
			p.events.push(msg)
		}
	case typeHello:
		p.mu.Lock()
		p.agent = msg.Agent
		p.mu.Unlock()
	default:
		p.logger.Debug("Ignoring bridge frame", logging.F("type", msg.Type))
	}
}

// dispatch delivers queued events in arrival order on its own goroutine so
// handlers may issue commands without blocking the read loop.
func (p *Page) dispatch() {
	for {
		msg, ok := p.events.pop(p.done)
		if !ok {
			return
		}
		ev := player.Event{Name: player.EventName(msg.Name)}
		if msg.Error != "" {
			ev.Err = errors.ErrCommandFailed("player", msg.Error)
		}
		switch ev.Name {
		case player.EventAdaptation, player.EventError:
			p.playerEvents.Emit(ev)
		case player.EventRateChange, player.EventEnded:
			p.mediaEvents.Emit(ev)
		default:
			p.logger.Debug("Unknown player event", logging.F("name", msg.Name))
		}
	}
}

// call sends a command and waits for its reply. Without a caller deadline
// the page's command timeout applies.
func (p *Page) call(ctx context.Context, method string, params interface{}) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.commandTimeout)
		defer cancel()
	}
	return p.await(ctx, method, params)
}

// await sends a command and waits for its reply, bounded only by ctx and
// the connection.
func (p *Page) await(ctx context.Context, method string, params interface{}) error {
	ch := make(chan reply, 1)
	p.mu.Lock()
	if p.err != nil {
		err := p.err
		p.mu.Unlock()
		return err
	}
	p.nextID++
	id := p.nextID
	p.pending[id] = pendingCall{method: method, ch: ch}
	p.mu.Unlock()

	msg := commandMessage{Type: typeCommand, ID: id, Method: method, Params: params}
	if err := p.writeJSON(msg); err != nil {
		p.forget(id)
		p.close(errors.ErrBridgeDisconnected(err))
		return errors.ErrBridgeDisconnected(err)
	}

	select {
	case r := <-ch:
		return r.err
	case <-ctx.Done():
		p.forget(id)
		if ctx.Err() == context.DeadlineExceeded {
			return errors.ErrTimeout(method + " timed out")
		}
		return ctx.Err()
	}
}

func (p *Page) forget(id int64) {
	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
}

func (p *Page) writeJSON(v interface{}) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return p.conn.WriteJSON(v)
}

func (p *Page) ping() error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return p.conn.WriteMessage(websocket.PingMessage, nil)
}

// close fails every pending command with cause and shuts the connection.
func (p *Page) close(cause error) {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.err = cause
		pending := p.pending
		p.pending = make(map[int64]pendingCall)
		p.mu.Unlock()

		for _, pc := range pending {
			pc.ch <- reply{err: cause}
		}
		close(p.done)
		p.conn.Close()
	})
}
