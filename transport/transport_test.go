package transport

import (
	"net"
	"sync"
	"testing"

	"github.com/xtaci/smux"
)

func createPipeSessionPair(t *testing.T) (*smux.Session, *smux.Session) {
	t.Helper()
	clientConn, serverConn := net.Pipe()

	var clientSession, serverSession *smux.Session
	var clientErr, serverErr error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		clientSession, clientErr = smux.Client(clientConn, DefaultConfig())
	}()
	go func() {
		defer wg.Done()
		serverSession, serverErr = smux.Server(serverConn, DefaultConfig())
	}()
	wg.Wait()

	if clientErr != nil {
		t.Fatalf("smux.Client: %v", clientErr)
	}
	if serverErr != nil {
		t.Fatalf("smux.Server: %v", serverErr)
	}
	return clientSession, serverSession
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxFrameSize != 65535 {
		t.Errorf("MaxFrameSize = %d, want 65535", cfg.MaxFrameSize)
	}
	if cfg.KeepAliveInterval.Seconds() != 5 {
		t.Errorf("KeepAliveInterval = %v, want 5s", cfg.KeepAliveInterval)
	}
}

func TestSessionPoolAddAndPick(t *testing.T) {
	pool := newSessionPool()
	if _, ok := pool.pick("addr1"); ok {
		t.Fatalf("expected no session for an empty pool")
	}

	client, server := createPipeSessionPair(t)
	defer client.Close()
	defer server.Close()

	pool.add("addr1", client)
	got, ok := pool.pick("addr1")
	if !ok {
		t.Fatalf("expected to pick a session after adding one")
	}
	if got != client {
		t.Errorf("picked session does not match the one added")
	}
}

func TestSessionPoolPrunesClosedSessions(t *testing.T) {
	pool := newSessionPool()
	client, server := createPipeSessionPair(t)
	defer server.Close()

	pool.add("addr1", client)
	client.Close()

	if _, ok := pool.pick("addr1"); ok {
		t.Errorf("expected pick to skip a closed session")
	}
}

func TestEvaluateRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	defer ln.Close()

	handle := func(req Request) Response {
		return Response{Verdict: "YES", ElapsedMS: 1}
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		serveConn(conn, DefaultConfig(), handle)
	}()

	client := NewClient()
	resp, err := client.Evaluate(ln.Addr().String(), Request{QueryText: "q"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if resp.Verdict != "YES" {
		t.Errorf("Verdict = %q, want YES", resp.Verdict)
	}
}
