package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"
)

func newTestBridge(t *testing.T) (*Bridge, string) {
	t.Helper()
	pairs, err := NewPairStore(t.TempDir())
	if err != nil {
		t.Fatalf("new pair store: %v", err)
	}
	b := New(pairs, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			c := newConn(b, nc)
			go c.serve(ctx)
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return b, addr
}

func dial(t *testing.T, addr string) (net.Conn, *bufio.Scanner) {
	t.Helper()
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { nc.Close() })
	return nc, bufio.NewScanner(nc)
}

func sendFrame(t *testing.T, nc net.Conn, f Frame) {
	t.Helper()
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	data = append(data, '\n')
	if _, err := nc.Write(data); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func readFrame(t *testing.T, scanner *bufio.Scanner) Frame {
	t.Helper()
	if !scanner.Scan() {
		t.Fatalf("scan failed: %v", scanner.Err())
	}
	var f Frame
	if err := json.Unmarshal(scanner.Bytes(), &f); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return f
}

// TestHandshake_UnknownNodeGetsNotPaired verifies spec §4.5: a hello with
// no token registers a pending pair request and replies not_paired.
func TestHandshake_UnknownNodeGetsNotPaired(t *testing.T) {
	b, addr := newTestBridge(t)
	nc, scanner := dial(t, addr)

	sendFrame(t, nc, Frame{Type: FrameHello, NodeID: "phone-1", Commands: []string{"ring"}})
	got := readFrame(t, scanner)
	if got.Type != FrameNotPaired {
		t.Fatalf("expected not_paired, got %+v", got)
	}

	pending := b.pairs.Pending()
	if len(pending) != 1 || pending[0].NodeID != "phone-1" {
		t.Fatalf("expected phone-1 pending, got %+v", pending)
	}
}

// TestHandshake_UnknownTokenGetsAuthError verifies a stale/garbage token is
// rejected with auth_error rather than silently treated as unpaired.
func TestHandshake_UnknownTokenGetsAuthError(t *testing.T) {
	_, addr := newTestBridge(t)
	nc, scanner := dial(t, addr)

	sendFrame(t, nc, Frame{Type: FrameHello, NodeID: "phone-1", Token: "garbage"})
	got := readFrame(t, scanner)
	if got.Type != FrameAuthError {
		t.Fatalf("expected auth_error, got %+v", got)
	}
}

// TestHandshake_ApprovedNodeAuthenticates verifies the approve -> reconnect
// -> auth_ok path end to end.
func TestHandshake_ApprovedNodeAuthenticates(t *testing.T) {
	b, addr := newTestBridge(t)

	nc1, scanner1 := dial(t, addr)
	sendFrame(t, nc1, Frame{Type: FrameHello, NodeID: "phone-1"})
	readFrame(t, scanner1) // not_paired
	nc1.Close()

	node, err := b.ApprovePair("phone-1")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}

	nc2, scanner2 := dial(t, addr)
	sendFrame(t, nc2, Frame{Type: FrameHello, NodeID: "phone-1", Token: node.Token})
	got := readFrame(t, scanner2)
	if got.Type != FrameAuthOK {
		t.Fatalf("expected auth_ok, got %+v", got)
	}

	deadline := time.Now().Add(time.Second)
	for !b.Connected("phone-1") {
		if time.Now().After(deadline) {
			t.Fatal("expected node to be registered as connected")
		}
		time.Sleep(time.Millisecond)
	}
}

// TestInvoke_UnavailableWhenNotConnected verifies spec §4.5: invoking a
// node with no live socket fails fast with ErrUnavailable.
func TestInvoke_UnavailableWhenNotConnected(t *testing.T) {
	b, _ := newTestBridge(t)
	_, err := b.Invoke(context.Background(), "ghost", "ring", nil, time.Second)
	if err == nil {
		t.Fatal("expected error for disconnected node")
	}
}

// TestInvoke_RoundTripsResult drives a full invoke/invoke_result exchange.
func TestInvoke_RoundTripsResult(t *testing.T) {
	b, addr := newTestBridge(t)
	nc, scanner := dial(t, addr)

	sendFrame(t, nc, Frame{Type: FrameHello, NodeID: "phone-1"})
	readFrame(t, scanner) // not_paired
	node, err := b.ApprovePair("phone-1")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	nc.Close()

	nc2, scanner2 := dial(t, addr)
	sendFrame(t, nc2, Frame{Type: FrameHello, NodeID: "phone-1", Token: node.Token})
	readFrame(t, scanner2) // auth_ok

	done := make(chan struct{})
	var invokeErr error
	var result json.RawMessage
	go func() {
		result, invokeErr = b.Invoke(context.Background(), "phone-1", "ring", nil, time.Second)
		close(done)
	}()

	invokeFrame := readFrame(t, scanner2)
	if invokeFrame.Type != FrameInvoke || invokeFrame.Command != "ring" {
		t.Fatalf("expected invoke frame for ring, got %+v", invokeFrame)
	}
	sendFrame(t, nc2, Frame{Type: FrameInvokeResult, ID: invokeFrame.ID, OK: true, ResultJSON: json.RawMessage(`{"rang":true}`)})

	<-done
	if invokeErr != nil {
		t.Fatalf("unexpected invoke error: %v", invokeErr)
	}
	if string(result) != `{"rang":true}` {
		t.Fatalf("unexpected result: %s", result)
	}
}

// TestInvoke_TimesOutWhenNodeNeverReplies verifies the per-call timeout
// independent of the 20s/60s keepalive timers.
func TestInvoke_TimesOutWhenNodeNeverReplies(t *testing.T) {
	b, addr := newTestBridge(t)
	nc, scanner := dial(t, addr)
	sendFrame(t, nc, Frame{Type: FrameHello, NodeID: "phone-1"})
	readFrame(t, scanner)
	node, err := b.ApprovePair("phone-1")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	nc.Close()

	nc2, scanner2 := dial(t, addr)
	sendFrame(t, nc2, Frame{Type: FrameHello, NodeID: "phone-1", Token: node.Token})
	readFrame(t, scanner2)

	_, err = b.Invoke(context.Background(), "phone-1", "ring", nil, 20*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}
