package transport

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"peer-hub/pkg/auth"
	"peer-hub/pkg/protocol"
	"peer-hub/pkg/queue"
)

// LinkPath is where every endpoint accepts links.
const LinkPath = "/api/v1/link"

// WSConfig configures a WebSocket transport endpoint.
type WSConfig struct {
	Name   string // presented to every endpoint this transport dials
	Secret string // required from dialers; empty accepts everyone

	// Persistent endpoint names are redialed after the link drops.
	Persistent       []string
	RetryInterval    time.Duration
	TokenTTL         time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// Secure endpoint names are dialed over wss:// with TLSConfig.
	Secure    []string
	TLSConfig *tls.Config
}

// WS is a Transport over gorilla/websocket with JSON messages.
type WS struct {
	hooks
	cfg      WSConfig
	upgrader websocket.Upgrader
	dialer   *websocket.Dialer

	mu      sync.RWMutex
	links   map[string]*wsLink
	server  *http.Server
	inbound *queue.Queue[Envelope]

	closed    chan struct{}
	closeOnce sync.Once
}

type wsLink struct {
	name   string
	conn   *websocket.Conn
	wmu    sync.Mutex
	target *dialTarget // set on links this side dialed
}

type dialTarget struct {
	address string
	port    int
	secret  string
	secure  bool
}

var _ Transport = (*WS)(nil)

func NewWS(cfg WSConfig) *WS {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Minute
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &WS{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			TLSClientConfig:  cfg.TLSConfig,
		},
		links:   map[string]*wsLink{},
		inbound: queue.New[Envelope](),
		closed:  make(chan struct{}),
	}
}

// Listen serves LinkPath on addr in the background.
func (w *WS) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle(LinkPath, w)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	w.mu.Lock()
	w.server = srv
	w.mu.Unlock()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("link listener %s stopped: %v", addr, err)
		}
	}()
	log.Printf("link listener on %s name=%s", ln.Addr(), w.cfg.Name)
	return nil
}

// ServeHTTP accepts a link; expects ?name=<dialer>.
func (w *WS) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(rw, "name required", http.StatusBadRequest)
		return
	}
	if w.cfg.Secret != "" {
		h := r.Header.Get("Authorization")
		claimed, err := auth.ParseLink(strings.TrimPrefix(h, "Bearer "), w.cfg.Secret)
		if !strings.HasPrefix(h, "Bearer ") || err != nil || claimed != name {
			log.Printf("link rejected name=%s remote=%s", name, r.RemoteAddr)
			http.Error(rw, "unauthorized", http.StatusUnauthorized)
			return
		}
	}
	c, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		log.Printf("link upgrade failed name=%s err=%v", name, err)
		return
	}
	w.attach(&wsLink{name: name, conn: c})
}

func (w *WS) Open(name, address string, port int, secret string) error {
	if w.isClosed() {
		return ErrClosed
	}
	target := &dialTarget{address: address, port: port, secret: secret, secure: contains(w.cfg.Secure, name)}
	c, err := w.dial(target)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	w.attach(&wsLink{name: name, conn: c, target: target})
	return nil
}

func (w *WS) dial(t *dialTarget) (*websocket.Conn, error) {
	scheme := "ws"
	if t.secure {
		scheme = "wss"
	}
	u := url.URL{
		Scheme:   scheme,
		Host:     net.JoinHostPort(t.address, strconv.Itoa(t.port)),
		Path:     LinkPath,
		RawQuery: url.Values{"name": []string{w.cfg.Name}}.Encode(),
	}
	header := http.Header{}
	if t.secret != "" {
		tok, err := auth.LinkToken(w.cfg.Name, t.secret, w.cfg.TokenTTL)
		if err != nil {
			return nil, fmt.Errorf("sign link token: %w", err)
		}
		header.Set("Authorization", "Bearer "+tok)
	}
	c, resp, err := w.dialer.Dial(u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return c, nil
}

func (w *WS) attach(l *wsLink) {
	w.mu.Lock()
	old := w.links[l.name]
	w.links[l.name] = l
	w.mu.Unlock()
	if old != nil {
		// replaced links leave quietly
		_ = old.conn.Close()
	}
	log.Printf("link up name=%s dialed=%v", l.name, l.target != nil)
	w.connected(l.name)
	go w.readLoop(l)
}

func (w *WS) readLoop(l *wsLink) {
	defer w.detach(l)
	for {
		var msg protocol.Message
		if err := l.conn.ReadJSON(&msg); err != nil {
			return
		}
		w.inbound.Push(Envelope{From: l.name, Msg: msg})
	}
}

func (w *WS) detach(l *wsLink) {
	_ = l.conn.Close()
	w.mu.Lock()
	current := w.links[l.name] == l
	if current {
		delete(w.links, l.name)
	}
	w.mu.Unlock()
	if !current {
		return
	}
	log.Printf("link down name=%s", l.name)
	w.disconnected(l.name)
	if l.target != nil && w.persistent(l.name) && !w.isClosed() {
		go w.redial(l.name, l.target)
	}
}

// redial keeps trying a persistent endpoint until it is back or the transport closes.
func (w *WS) redial(name string, t *dialTarget) {
	for {
		select {
		case <-w.closed:
			return
		case <-time.After(w.cfg.RetryInterval):
		}
		if w.Has(name) {
			return
		}
		c, err := w.dial(t)
		if err != nil {
			log.Printf("redial %s failed: %v (retry in %s)", name, err, w.cfg.RetryInterval)
			continue
		}
		w.attach(&wsLink{name: name, conn: c, target: t})
		return
	}
}

func (w *WS) persistent(name string) bool {
	return contains(w.cfg.Persistent, name)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (w *WS) Send(name string, msg protocol.Message) error {
	w.mu.RLock()
	l := w.links[name]
	w.mu.RUnlock()
	if l == nil {
		return fmt.Errorf("send to %s: %w", name, ErrNoLink)
	}
	l.wmu.Lock()
	defer l.wmu.Unlock()
	_ = l.conn.SetWriteDeadline(time.Now().Add(w.cfg.WriteTimeout))
	if err := l.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send to %s: %w", name, err)
	}
	return nil
}

func (w *WS) Has(name string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.links[name]
	return ok
}

// Drop closes the link to name. Disconnect hooks fire and persistent
// endpoints are redialed as for any lost link.
func (w *WS) Drop(name string) {
	w.mu.RLock()
	l := w.links[name]
	w.mu.RUnlock()
	if l != nil {
		_ = l.conn.Close()
	}
}

func (w *WS) Inbound() <-chan Envelope {
	return w.inbound.Out()
}

func (w *WS) Close() error {
	w.closeOnce.Do(func() {
		close(w.closed)
		w.mu.Lock()
		srv := w.server
		links := make([]*wsLink, 0, len(w.links))
		for _, l := range w.links {
			links = append(links, l)
		}
		w.mu.Unlock()
		if srv != nil {
			_ = srv.Close()
		}
		for _, l := range links {
			_ = l.conn.Close()
		}
		w.inbound.Close()
	})
	return nil
}

func (w *WS) isClosed() bool {
	select {
	case <-w.closed:
		return true
	default:
		return false
	}
}
