package bus

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ObserverConfig configures the event observer.
type ObserverConfig struct {
	ReplayHistory bool // send recent history when a client connects
	HistoryCount  int
	WriteWait     time.Duration
	PongWait      time.Duration
}

// DefaultObserverConfig returns the default observer configuration.
func DefaultObserverConfig() ObserverConfig {
	return ObserverConfig{
		ReplayHistory: true,
		HistoryCount:  100,
		WriteWait:     10 * time.Second,
		PongWait:      60 * time.Second,
	}
}

// Observer streams bus events as JSON text frames to WebSocket clients.
// Query parameters replay=false and count=N override the history replay per
// connection.
type Observer struct {
	bus      *Bus
	cfg      ObserverConfig
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu      sync.Mutex
	clients map[*observerClient]struct{}
}

type observerClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *observerClient) stop() {
	c.once.Do(func() { close(c.done) })
}

// enqueue drops the client when it cannot keep up.
func (c *observerClient) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		c.stop()
	}
}

// NewObserver creates an observer over b.
func NewObserver(b *Bus, cfg ObserverConfig) *Observer {
	d := DefaultObserverConfig()
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = d.WriteWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = d.PongWait
	}
	return &Observer{
		bus: b,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log:     log.With().Str("component", "observer").Logger(),
		clients: make(map[*observerClient]struct{}),
	}
}

// ClientCount returns the number of connected observers.
func (o *Observer) ClientCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.clients)
}

// Close disconnects every observer.
func (o *Observer) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for c := range o.clients {
		c.stop()
	}
}

func (o *Observer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	replay := o.cfg.ReplayHistory
	if v := r.URL.Query().Get("replay"); v != "" {
		replay = v != "false"
	}
	count := o.cfg.HistoryCount
	if n, err := strconv.Atoi(r.URL.Query().Get("count")); err == nil && n >= 0 {
		count = n
	}

	conn, err := o.upgrader.Upgrade(w, r, nil)
	if err != nil {
		o.log.Warn().Err(err).Msg("observer upgrade failed")
		return
	}

	c := &observerClient{
		conn: conn,
		send: make(chan []byte, 256),
		done: make(chan struct{}),
	}
	if replay {
		for _, event := range o.bus.HistorySlice(count) {
			o.forward(c, event)
		}
	}
	id := o.bus.Subscribe("", func(event Event) { o.forward(c, event) })

	o.mu.Lock()
	o.clients[c] = struct{}{}
	total := len(o.clients)
	o.mu.Unlock()
	o.log.Debug().Int("clients", total).Msg("observer connected")

	go o.writePump(c)
	o.readPump(c)

	if id != "" {
		_ = o.bus.Unsubscribe(id)
	}
	c.stop()
	o.mu.Lock()
	delete(o.clients, c)
	o.mu.Unlock()
	o.log.Debug().Msg("observer disconnected")
}

func (o *Observer) forward(c *observerClient, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		o.log.Error().Err(err).Str("event_id", event.ID).Msg("failed to marshal event")
		return
	}
	c.enqueue(data)
}

func (o *Observer) writePump(c *observerClient) {
	ticker := time.NewTicker(o.cfg.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(o.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(o.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(o.cfg.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "observer closed"))
			return
		}
	}
}

// readPump only watches for the client going away; observers send nothing.
func (o *Observer) readPump(c *observerClient) {
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(o.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(o.cfg.PongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				o.log.Debug().Err(err).Msg("observer read error")
			}
			return
		}
	}
}
