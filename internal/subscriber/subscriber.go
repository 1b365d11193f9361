// Package subscriber implements the streaming subscriber of §4.D: a
// persistent logs-subscription push stream over WebSocket that reconnects
// and resubscribes on failure, emitting signatures into an unbounded
// outbound queue.
//
// Grounded on the teacher's src/chainadapter/rpc/websocket.go (gorilla
// websocket dial, read loop, reconnect-with-backoff) for the connection
// machinery, and on original_source/src/transport/websocket/manager.rs for
// the subscribe-once / fast-path-filter / one-shot-receiver semantics this
// package reproduces.
package subscriber

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relaysol/mirror/internal/mirrorlog"
)

const notificationMarker = "logsNotification"

// Config holds the subscriber's tunables, all with the defaults named in
// §4.D.
type Config struct {
	URL              string
	Wallet           string
	ReconnectBackoff time.Duration
	PingInterval     time.Duration
}

// DefaultConfig fills in §4.D's defaults around the required URL/Wallet.
func DefaultConfig(url, wallet string) Config {
	return Config{
		URL:              url,
		Wallet:           wallet,
		ReconnectBackoff: 2 * time.Second,
		PingInterval:     30 * time.Second,
	}
}

// Subscriber maintains a single push stream, forwarding detected
// signatures into an outbound channel whose receiver is handed out exactly
// once. The outbound queue is genuinely unbounded: a slice-backed FIFO
// guarded by queueMu, drained by dispatchLoop into outCh as fast as the
// consumer reads, so a reconnect burst or a hot wallet queues up in memory
// rather than dropping signatures.
type Subscriber struct {
	cfg    Config
	logger *mirrorlog.Logger

	queueMu sync.Mutex
	queue   []string
	wake    chan struct{}
	outCh   chan string

	recvTook bool
	recvMu   sync.Mutex

	dialer *websocket.Dialer
}

// New creates a Subscriber.
func New(cfg Config, logger *mirrorlog.Logger) *Subscriber {
	return &Subscriber{
		cfg:    cfg,
		logger: logger,
		wake:   make(chan struct{}, 1),
		outCh:  make(chan string),
		dialer: websocket.DefaultDialer,
	}
}

// SignatureReceiver hands out the receive half of the outbound queue. A
// second call is a programming error, not a runtime condition, and panics
// immediately rather than returning a confusing closed/empty channel.
func (s *Subscriber) SignatureReceiver() <-chan string {
	s.recvMu.Lock()
	defer s.recvMu.Unlock()
	if s.recvTook {
		panic("subscriber: SignatureReceiver called more than once")
	}
	s.recvTook = true
	return s.outCh
}

// push appends a signature to the unbounded queue and wakes dispatchLoop if
// it's waiting.
func (s *Subscriber) push(sig string) {
	s.queueMu.Lock()
	s.queue = append(s.queue, sig)
	s.queueMu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// dispatchLoop forwards the front of the queue into outCh one signature at
// a time, blocking on a slow consumer without ever dropping a pending one.
func (s *Subscriber) dispatchLoop(stop <-chan struct{}) {
	for {
		s.queueMu.Lock()
		if len(s.queue) == 0 {
			s.queueMu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-stop:
				return
			}
		}
		next := s.queue[0]
		s.queueMu.Unlock()

		select {
		case s.outCh <- next:
			s.queueMu.Lock()
			s.queue = s.queue[1:]
			s.queueMu.Unlock()
		case <-stop:
			return
		}
	}
}

// Run drives the reconnect state machine (Disconnected → Handshaking →
// Streaming → RetryDelay) until stop fires. Each connection attempt
// reapplies the current filter, so callers subscribe exactly once from
// their own perspective.
func (s *Subscriber) Run(stop <-chan struct{}) {
	go s.dispatchLoop(stop)

	for {
		select {
		case <-stop:
			return
		default:
		}

		err := s.runOnce(stop)
		if err != nil {
			s.logger.Warn("subscriber connection failed", mirrorlog.F("error", err.Error()))
		}

		select {
		case <-stop:
			return
		case <-time.After(s.cfg.ReconnectBackoff):
		}
	}
}

func (s *Subscriber) runOnce(stop <-chan struct{}) error {
	conn, _, err := s.dialer.Dial(s.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	s.logger.Info("subscriber connected", mirrorlog.F("url", s.cfg.URL))

	subscribeMsg := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "logsSubscribe",
		"params": []interface{}{
			map[string]interface{}{"mentions": []string{s.cfg.Wallet}},
			map[string]interface{}{"commitment": "processed"},
		},
	}
	if err := conn.WriteJSON(subscribeMsg); err != nil {
		return err
	}
	s.logger.Info("subscribed to logs", mirrorlog.F("wallet", s.cfg.Wallet))

	readErrCh := make(chan error, 1)
	go func() {
		readErrCh <- s.readLoop(conn)
	}()

	pingTicker := time.NewTicker(s.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-stop:
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case err := <-readErrCh:
			return err
		case <-pingTicker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

func (s *Subscriber) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		text := string(data)
		// Fast-path filter: skip the full JSON parse unless the frame is a
		// notification; other frame types are dropped without parsing.
		if !strings.Contains(text, notificationMarker) {
			continue
		}

		var notification struct {
			Params struct {
				Result struct {
					Value struct {
						Signature string `json:"signature"`
					} `json:"value"`
				} `json:"result"`
			} `json:"params"`
		}
		if err := json.Unmarshal(data, &notification); err != nil {
			s.logger.Warn("failed to parse notification", mirrorlog.F("error", err.Error()))
			continue
		}

		sig := notification.Params.Result.Value.Signature
		if sig == "" {
			continue
		}

		s.push(sig)
	}
}
