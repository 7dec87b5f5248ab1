// Package broadcaster implements the Broadcaster: a throttled full-state
// snapshot pusher plus the inbound client command surface, built on this
// codebase's client-map-and-broadcast WebSocket shape from
// internal/gateway/gateway.go, trimmed from its many fine-grained JSON-RPC
// methods to the spec's single `state:full`/`activity:log` pair and five
// `command:*` mutations.
package broadcaster

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/Rikinshah787/agentos/internal/bus"
	"github.com/Rikinshah787/agentos/internal/memoryjson"
	"github.com/Rikinshah787/agentos/internal/orchestrator"
	"github.com/Rikinshah787/agentos/internal/registry"
	"github.com/Rikinshah787/agentos/internal/rlscore"
	"github.com/Rikinshah787/agentos/internal/task"
)

// DefaultThrottle is the minimum spacing between two full snapshots (spec
// §4.10).
const DefaultThrottle = 300 * time.Millisecond

// envelope is the outbound frame shape: {"type": "...", "payload": ...}.
type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(ctx context.Context, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wsjson.Write(ctx, c.conn, payload)
}

// Broadcaster composes full-state snapshots from the Registry/Task
// Manager/RL Scorer/Memory Store/Bus, pushes them (throttled) and every
// bus event (unthrottled, as `activity:log`) to every connected client,
// and decodes inbound `command:*` frames into calls against the
// Orchestrator, Task Manager, and Agent Registry.
type Broadcaster struct {
	reg     *registry.Registry
	tasks   *task.Manager
	scorer  *rlscore.Scorer
	memory  *memoryjson.Store
	b       *bus.Bus
	orch    *orchestrator.Orchestrator
	logger  *slog.Logger

	resolveCredential registry.CredentialResolver
	allowOrigins      []string
	throttle          time.Duration
	nowFn             func() int64

	touchCh chan struct{}

	clientsMu sync.RWMutex
	clients   map[*client]struct{}
}

// New builds a Broadcaster. logger may be nil (defaults to slog.Default()).
func New(
	reg *registry.Registry,
	tasks *task.Manager,
	scorer *rlscore.Scorer,
	memory *memoryjson.Store,
	b *bus.Bus,
	orch *orchestrator.Orchestrator,
	logger *slog.Logger,
) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		reg:      reg,
		tasks:    tasks,
		scorer:   scorer,
		memory:   memory,
		b:        b,
		orch:     orch,
		logger:   logger,
		throttle: DefaultThrottle,
		touchCh:  make(chan struct{}, 1),
		clients:  make(map[*client]struct{}),
	}
}

// SetAllowOrigins restricts accepted WebSocket Origin headers.
func (br *Broadcaster) SetAllowOrigins(origins []string) { br.allowOrigins = origins }

// SetCredentialResolver wires the Config Loader's pure credential check
// into runtime agent additions via command:addAgent.
func (br *Broadcaster) SetCredentialResolver(r registry.CredentialResolver) {
	br.resolveCredential = r
}

// SetThrottle overrides the default 300ms snapshot spacing; used by tests.
func (br *Broadcaster) SetThrottle(d time.Duration) { br.throttle = d }

// SetClock overrides the broadcaster's time source; used by tests.
func (br *Broadcaster) SetClock(now func() int64) { br.nowFn = now }

func (br *Broadcaster) now() int64 {
	if br.nowFn != nil {
		return br.nowFn()
	}
	return time.Now().UnixMilli()
}

// Touch schedules a throttled snapshot broadcast. Implements
// orchestrator.Notifier — every registry/task/memory mutation calls this.
func (br *Broadcaster) Touch() {
	select {
	case br.touchCh <- struct{}{}:
	default:
	}
}

// Run drives the throttled snapshot loop and the unthrottled activity-log
// forwarder until ctx is cancelled. Call it once, typically in its own
// goroutine from cmd/agentos.
func (br *Broadcaster) Run(ctx context.Context) {
	sub := br.b.Subscribe("")
	defer br.b.Unsubscribe(sub)
	go br.forwardActivity(ctx, sub)
	br.throttleLoop(ctx)
}

// throttleLoop implements spec §4.10's throttle: the first touch broadcasts
// immediately; any touch arriving during the following throttle window is
// coalesced into exactly one trailing broadcast at the window's end.
func (br *Broadcaster) throttleLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-br.touchCh:
		}

		br.broadcastSnapshot(ctx)

		timer := time.NewTimer(br.throttle)
		pending := false
	quiet:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-br.touchCh:
				pending = true
			case <-timer.C:
				break quiet
			}
		}
		if pending {
			br.broadcastSnapshot(ctx)
		}
	}
}

func (br *Broadcaster) forwardActivity(ctx context.Context, sub *bus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.Ch():
			if !ok {
				return
			}
			recent := br.b.RecentActivity(1)
			if len(recent) == 0 {
				continue
			}
			br.sendToAll(ctx, envelope{Type: "activity:log", Payload: recent[0]})
		}
	}
}

func (br *Broadcaster) broadcastSnapshot(ctx context.Context) {
	br.sendToAll(ctx, envelope{Type: "state:full", Payload: br.buildSnapshot()})
}

func (br *Broadcaster) sendToAll(ctx context.Context, payload any) {
	br.clientsMu.RLock()
	defer br.clientsMu.RUnlock()
	for c := range br.clients {
		if err := c.write(ctx, payload); err != nil {
			br.logger.Warn("broadcaster: client write failed", "error", err)
		}
	}
}

func (br *Broadcaster) addClient(c *client) {
	br.clientsMu.Lock()
	defer br.clientsMu.Unlock()
	br.clients[c] = struct{}{}
}

func (br *Broadcaster) removeClient(c *client) {
	br.clientsMu.Lock()
	defer br.clientsMu.Unlock()
	delete(br.clients, c)
}

// ClientCount reports the number of currently connected clients.
func (br *Broadcaster) ClientCount() int {
	br.clientsMu.RLock()
	defer br.clientsMu.RUnlock()
	return len(br.clients)
}

// Handler returns the HTTP handler serving the WebSocket endpoint.
func (br *Broadcaster) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", br.handleWS)
	return mux
}

func (br *Broadcaster) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: br.allowOrigins})
	if err != nil {
		return
	}
	c := &client{conn: conn}
	br.addClient(c)
	br.logger.Info("broadcaster: client connected")
	defer func() {
		br.removeClient(c)
		br.logger.Info("broadcaster: client disconnected")
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}()

	if err := c.write(r.Context(), envelope{Type: "state:full", Payload: br.buildSnapshot()}); err != nil {
		return
	}

	for {
		var msg inboundEnvelope
		if err := wsjson.Read(r.Context(), conn, &msg); err != nil {
			return
		}
		br.handleCommand(r.Context(), msg)
	}
}
