// Package transport multiplexes many concurrent query-evaluation requests
// over a single TCP connection to a --remote-worker process, using smux the
// same way the reference forwarding daemon multiplexes its relay
// connections, rather than opening one socket per request.
package transport

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/xtaci/smux"
)

// DefaultConfig mirrors the reference connection package's smux tuning.
func DefaultConfig() *smux.Config {
	return &smux.Config{
		Version:           1,
		KeepAliveInterval: 5 * time.Second,
		KeepAliveTimeout:  30 * time.Second,
		MaxFrameSize:      65535,
		MaxReceiveBuffer:  4194304,
		MaxStreamBuffer:   131072,
	}
}

// Request is one multiplexed evaluation request: the text of a query the
// remote worker is expected to already have loaded (see the distributed
// package's doc comment on why only Text crosses the wire).
type Request struct {
	QueryText string `json:"query_text"`
}

// Response carries back a flattened verdict, mirroring distributed.JobResult
// so both transports report results the same shape.
type Response struct {
	Verdict   string `json:"verdict"`
	ElapsedMS int64  `json:"elapsed_ms"`
	Err       string `json:"error,omitempty"`
}

// sessionPool keeps one smux.Session per remote address, round-robining
// among however many a caller chooses to open, and pruning closed ones --
// grounded on the reference connection package's client session pool.
type sessionPool struct {
	mu       sync.RWMutex
	sessions map[string][]*smux.Session
	counter  uint64
}

func newSessionPool() *sessionPool {
	return &sessionPool{sessions: make(map[string][]*smux.Session)}
}

func (p *sessionPool) pick(addr string) (*smux.Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var valid []*smux.Session
	for _, s := range p.sessions[addr] {
		if s != nil && !s.IsClosed() {
			valid = append(valid, s)
		}
	}
	if len(valid) == 0 {
		return nil, false
	}
	idx := atomic.AddUint64(&p.counter, 1) % uint64(len(valid))
	return valid[idx], true
}

func (p *sessionPool) add(addr string, s *smux.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.sessions[addr][:0:0]
	for _, old := range p.sessions[addr] {
		if old != nil && !old.IsClosed() {
			kept = append(kept, old)
		}
	}
	p.sessions[addr] = append(kept, s)
}

// Client dials remote-worker addresses and multiplexes requests over a
// pooled smux session per address.
type Client struct {
	pool   *sessionPool
	config *smux.Config
}

// NewClient creates a client with the default smux tuning.
func NewClient() *Client {
	return &Client{pool: newSessionPool(), config: DefaultConfig()}
}

func (c *Client) session(addr string) (*smux.Session, error) {
	if s, ok := c.pool.pick(addr); ok {
		return s, nil
	}
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("transport: dialing %s: %w", addr, err)
	}
	sess, err := smux.Client(conn, c.config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: establishing smux session to %s: %w", addr, err)
	}
	c.pool.add(addr, sess)
	return sess, nil
}

// Evaluate opens a fresh stream on addr's session, sends req, and waits for
// a Response.
func (c *Client) Evaluate(addr string, req Request) (*Response, error) {
	sess, err := c.session(addr)
	if err != nil {
		return nil, err
	}
	stream, err := sess.OpenStream()
	if err != nil {
		return nil, fmt.Errorf("transport: opening stream to %s: %w", addr, err)
	}
	defer stream.Close()

	if err := json.NewEncoder(stream).Encode(req); err != nil {
		return nil, fmt.Errorf("transport: sending request: %w", err)
	}
	var resp Response
	if err := json.NewDecoder(stream).Decode(&resp); err != nil {
		return nil, fmt.Errorf("transport: reading response: %w", err)
	}
	return &resp, nil
}

// Handler evaluates one Request and produces a Response, typically a
// closure over a loaded network/tables calling verifier.Run.
type Handler func(req Request) Response

// Serve accepts TCP connections on addr, wraps each as an smux server
// session, and dispatches every stream's request to handle until ctx-like
// shutdown is requested via the returned listener's Close.
func Serve(addr string, config *smux.Config, handle Handler) (net.Listener, error) {
	if config == nil {
		config = DefaultConfig()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listening on %s: %w", addr, err)
	}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				log.WithError(err).Info("transport: listener closed")
				return
			}
			go serveConn(conn, config, handle)
		}
	}()
	return ln, nil
}

func serveConn(conn net.Conn, config *smux.Config, handle Handler) {
	sess, err := smux.Server(conn, config)
	if err != nil {
		log.WithError(err).Error("transport: establishing server session")
		conn.Close()
		return
	}
	defer sess.Close()

	for {
		stream, err := sess.AcceptStream()
		if err != nil {
			return
		}
		go func() {
			defer stream.Close()
			var req Request
			if err := json.NewDecoder(stream).Decode(&req); err != nil {
				log.WithError(err).Error("transport: decoding request")
				return
			}
			resp := handle(req)
			if err := json.NewEncoder(stream).Encode(resp); err != nil {
				log.WithError(err).Error("transport: encoding response")
			}
		}()
	}
}
