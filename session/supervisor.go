package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nexuswave/wacore/binarynode"
	"github.com/nexuswave/wacore/errs"
	"github.com/nexuswave/wacore/internal/wlog"
	"github.com/nexuswave/wacore/wslink"
)

// ErrConnectionLost is surfaced (classified errs.ClassRecoverableConnection)
// whenever the keep-alive or session-health watchdog gives up on the
// current socket.
var ErrConnectionLost = errors.New("session: connection lost")

// ErrQueryTimeout is returned by Query when no reply arrives in time.
var ErrQueryTimeout = errors.New("session: query timed out waiting for a reply")

// ErrRateLimitRetriesExhausted is returned by Query after 20 rate-limited
// retries.
var ErrRateLimitRetriesExhausted = errors.New("session: exhausted rate-limit retries")

const (
	defaultMinSendInterval       = 50 * time.Millisecond
	defaultSessionHealthMultiple = 10
	maxRateLimitRetries          = 20
)

// Options configures a Supervisor's timers. Zero-value fields fall back
// to the spec's defaults.
type Options struct {
	KeepAliveInterval time.Duration
	MinSendInterval   time.Duration
}

func (o Options) withDefaults() Options {
	if o.KeepAliveInterval <= 0 {
		o.KeepAliveInterval = 20 * time.Second
	}
	if o.MinSendInterval <= 0 {
		o.MinSendInterval = defaultMinSendInterval
	}
	return o
}

// Supervisor owns the single WebSocket connection, keep-alive, reconnect,
// and stanza dispatch for one logged-in session. Grounded on
// transport/udp.go's lifecycle shape (context+cancel, RegisterHandler map,
// background read goroutine).
type Supervisor struct {
	dialer  wslink.Dialer
	url     string
	headers map[string][]string
	opts    Options

	router *Router
	queue  *sendQueue

	connMu sync.RWMutex
	conn   wslink.Conn

	lastRecvMu sync.Mutex
	lastRecv   time.Time

	pendingMu sync.Mutex
	pending   map[string]chan binarynode.Node

	keepAlive *KeepAliveTracker
	backoff   *ReconnectBackoff

	onFrameMu sync.Mutex
	onFrame   []func([]byte)

	onLost func(error)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log *wlog.Logger
}

// New constructs a Supervisor. Start dials and begins the event loop.
func New(dialer wslink.Dialer, url string, headers map[string][]string, opts Options) *Supervisor {
	return &Supervisor{
		dialer:    dialer,
		url:       url,
		headers:   headers,
		opts:      opts.withDefaults(),
		router:    NewRouter(),
		queue:     newSendQueue(),
		pending:   make(map[string]chan binarynode.Node),
		keepAlive: NewKeepAliveTracker(),
		backoff:   NewReconnectBackoff(),
		log:       wlog.New("session", "Supervisor"),
	}
}

// RegisterHandler subscribes fn to frames matching a "CB:..." selector.
func (s *Supervisor) RegisterHandler(key string, fn func(binarynode.Node)) {
	s.router.On(key, fn)
}

// OnFrame subscribes fn to every raw decoded frame.
func (s *Supervisor) OnFrame(fn func([]byte)) {
	s.onFrameMu.Lock()
	defer s.onFrameMu.Unlock()
	s.onFrame = append(s.onFrame, fn)
}

// OnConnectionLost subscribes fn to be called once when the supervisor
// gives up on the connection (keep-alive exhaustion, session-health
// timeout, or reconnect-attempt exhaustion).
func (s *Supervisor) OnConnectionLost(fn func(error)) {
	s.onLost = fn
}

// Start dials the WebSocket and begins the background loops. It returns
// once the initial dial succeeds.
func (s *Supervisor) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	conn, err := s.dialer.DialContext(s.ctx, s.url, s.headers)
	if err != nil {
		return errs.New(errs.ClassRecoverableConnection, fmt.Errorf("session: dial: %w", err))
	}
	s.setConn(conn)
	s.recordRecv()

	s.wg.Add(4)
	go s.readLoop()
	go s.sendLoop()
	go s.keepAliveLoop()
	go s.sessionHealthLoop()
	return nil
}

// Stop tears down the supervisor and closes the socket.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if conn := s.getConn(); conn != nil {
		_ = conn.Close()
	}
	s.wg.Wait()
}

func (s *Supervisor) setConn(c wslink.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.conn = c
}

func (s *Supervisor) getConn() wslink.Conn {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.conn
}

func (s *Supervisor) recordRecv() {
	s.lastRecvMu.Lock()
	defer s.lastRecvMu.Unlock()
	s.lastRecv = time.Now()
}

func (s *Supervisor) sinceLastRecv() time.Duration {
	s.lastRecvMu.Lock()
	defer s.lastRecvMu.Unlock()
	return time.Since(s.lastRecv)
}

// Send implements relay.Sender: encode and enqueue n for transmission.
func (s *Supervisor) Send(ctx context.Context, n binarynode.Node) error {
	s.queue.pushBack(binarynode.Encode(n))
	return nil
}

// Query sends n (assigning an id if absent) and waits for its TAG:{id}
// reply. A code=429 reply is retried with 300-1000ms jitter up to 20
// times before giving up.
func (s *Supervisor) Query(ctx context.Context, n binarynode.Node, timeout time.Duration) (binarynode.Node, error) {
	id, ok := n.Attr("id")
	if !ok {
		id = newMessageID()
		if n.Attrs == nil {
			n.Attrs = map[string]string{}
		}
		n.Attrs["id"] = id
	}

	for attempt := 0; ; attempt++ {
		reply, err := s.queryOnce(ctx, id, n, timeout)
		if err != nil {
			return binarynode.Node{}, err
		}
		if code, ok := reply.Attr("code"); ok && code == "429" {
			if attempt >= maxRateLimitRetries {
				return binarynode.Node{}, ErrRateLimitRetriesExhausted
			}
			select {
			case <-time.After(jitterRange(300*time.Millisecond, 1000*time.Millisecond)):
			case <-ctx.Done():
				return binarynode.Node{}, ctx.Err()
			}
			continue
		}
		return reply, nil
	}
}

func (s *Supervisor) queryOnce(ctx context.Context, id string, n binarynode.Node, timeout time.Duration) (binarynode.Node, error) {
	replyCh := make(chan binarynode.Node, 1)
	s.pendingMu.Lock()
	s.pending[id] = replyCh
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, id)
		s.pendingMu.Unlock()
	}()

	if err := s.Send(ctx, n); err != nil {
		return binarynode.Node{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case reply := <-replyCh:
		return reply, nil
	case <-timer.C:
		return binarynode.Node{}, ErrQueryTimeout
	case <-ctx.Done():
		return binarynode.Node{}, ctx.Err()
	}
}

func (s *Supervisor) deliverReply(n binarynode.Node) bool {
	id, ok := n.Attr("id")
	if !ok {
		return false
	}
	s.pendingMu.Lock()
	ch, ok := s.pending[id]
	s.pendingMu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- n:
	default:
	}
	return true
}

func (s *Supervisor) readLoop() {
	defer s.wg.Done()
	for {
		conn := s.getConn()
		if conn == nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			s.triggerReconnect(true)
			continue
		}

		s.recordRecv()
		s.keepAlive.RecordSuccess()

		s.onFrameMu.Lock()
		frameHandlers := append([]func([]byte){}, s.onFrame...)
		s.onFrameMu.Unlock()
		for _, fn := range frameHandlers {
			fn(data)
		}

		node, _, err := binarynode.Decode(data)
		if err != nil {
			s.log.WithError(err).Warn("failed to decode incoming frame")
			continue
		}
		s.deliverReply(node)
		s.router.Dispatch(node)
	}
}

func (s *Supervisor) sendLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.MinSendInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			frame, ok := s.queue.popFront()
			if !ok {
				continue
			}
			conn := s.getConn()
			if conn == nil {
				s.queue.pushFront(frame)
				s.triggerReconnect(false)
				continue
			}
			if err := conn.WriteMessage(wslink.BinaryMessage, frame); err != nil {
				s.queue.pushFront(frame)
				s.triggerReconnect(false)
			}
		}
	}
}

func (s *Supervisor) keepAliveLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			conn := s.getConn()
			if conn == nil {
				s.triggerReconnect(false)
				continue
			}
			ping := binarynode.Node{Tag: "iq", Attrs: map[string]string{
				"type": "get",
				"xmlns": "w:p",
				"id":    newMessageID(),
			}, Children: []binarynode.Node{{Tag: "ping"}}}
			if err := conn.WriteMessage(wslink.BinaryMessage, binarynode.Encode(ping)); err != nil {
				if s.keepAlive.RecordFailure() {
					s.endConnection()
				}
			}
		}
	}
}

func (s *Supervisor) sessionHealthLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.getConn() == nil && s.sinceLastRecv() > time.Duration(defaultSessionHealthMultiple)*s.opts.KeepAliveInterval {
				s.triggerReconnect(false)
			}
		}
	}
}

func (s *Supervisor) triggerReconnect(networkError bool) {
	s.setConn(nil)
	if s.backoff.Exhausted() {
		s.endConnection()
		return
	}
	wait := s.backoff.Next(networkError)
	go func() {
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(wait):
		}
		conn, err := s.dialer.DialContext(s.ctx, s.url, s.headers)
		if err != nil {
			s.triggerReconnect(networkError)
			return
		}
		s.setConn(conn)
		s.recordRecv()
		s.backoff.Reset()
		s.keepAlive.RecordSuccess()
	}()
}

func (s *Supervisor) endConnection() {
	if s.onLost != nil {
		s.onLost(errs.New(errs.ClassRecoverableConnection, ErrConnectionLost))
	}
}

var messageIDCounter uint64

func newMessageID() string {
	messageIDCounter++
	return fmt.Sprintf("wacore-%d-%d", time.Now().UnixNano(), messageIDCounter)
}
