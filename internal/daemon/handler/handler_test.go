package handler

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecmwf-go/retriever/internal/daemon/protocol"
	"github.com/ecmwf-go/retriever/internal/daemon/store"
	"github.com/ecmwf-go/retriever/internal/logsink"
)

// fakeAddr and addrConn wrap a net.Pipe half with a fake net.Addr so
// remoteHost can be overridden per test without needing a real TCP listener.
type fakeAddr string

func (f fakeAddr) Network() string { return "tcp" }
func (f fakeAddr) String() string  { return string(f) }

type addrConn struct {
	net.Conn
	remote net.Addr
}

func (a *addrConn) RemoteAddr() net.Addr { return a.remote }

func roundTrip(t *testing.T, p *Pool, remote string, request map[string]any) Response {
	t.Helper()
	client, server := net.Pipe()
	defer client.Close()

	wrapped := &addrConn{Conn: server, remote: fakeAddr(remote + ":9999")}
	serverConn := protocol.New(wrapped, 2*time.Second)

	conns := make(chan *protocol.Conn, 1)
	conns <- serverConn
	close(conns)

	done := make(chan struct{})
	go func() {
		p.Run(conns)
		close(done)
	}()

	clientConn := protocol.New(client, 2*time.Second)
	body, err := json.Marshal(request)
	require.NoError(t, err)
	require.NoError(t, clientConn.Send(string(body)))

	respText, ok, err := clientConn.Receive()
	require.NoError(t, err)
	require.True(t, ok)

	<-done

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(respText), &resp))
	return resp
}

func newTestPool(size int, stop StopHook) (*Pool, *store.Stores, chan string) {
	stores := store.New()
	taskQueue := make(chan string, 10)
	log := logsink.New(func(string, logsink.Level) {})
	return New(size, []string{"127.0.0.1"}, stores, taskQueue, log, stop), stores, taskQueue
}

func TestHandler_Heartbeat(t *testing.T) {
	p, _, _ := newTestPool(1, nil)
	resp := roundTrip(t, p, "127.0.0.1", map[string]any{"command": "heartbeat", "data": map[string]any{}})
	assert.Equal(t, "ok", resp.Status)
}

func TestHandler_UnauthorizedPeerClosesWithoutResponse(t *testing.T) {
	p, _, _ := newTestPool(1, nil)

	client, server := net.Pipe()
	wrapped := &addrConn{Conn: server, remote: fakeAddr("10.0.0.1:1111")}
	serverConn := protocol.New(wrapped, 200*time.Millisecond)

	conns := make(chan *protocol.Conn, 1)
	conns <- serverConn
	close(conns)

	done := make(chan struct{})
	go func() {
		p.Run(conns)
		close(done)
	}()

	clientConn := protocol.New(client, 200*time.Millisecond)
	_, ok, err := clientConn.Receive()
	require.NoError(t, err)
	assert.False(t, ok) // server closed without responding to an unauthorized peer
	<-done
}

func TestHandler_AddTransferThenListActive(t *testing.T) {
	p, stores, taskQueue := newTestPool(1, nil)

	resp := roundTrip(t, p, "127.0.0.1", map[string]any{
		"command": "add_transfer",
		"data":    map[string]any{"dataset": "s2s", "target": "out.bin"},
	})
	require.Equal(t, "ok", resp.Status)

	data := resp.Data.(map[string]any)
	taskID := data["task_id"].(string)
	assert.Len(t, taskID, 32)

	active := stores.ListActive()
	require.Len(t, active, 1)
	assert.Equal(t, taskID, active[0].TaskID)
	assert.Equal(t, store.StatusQueued, active[0].TaskStatus)

	select {
	case got := <-taskQueue:
		assert.Equal(t, taskID, got)
	default:
		t.Fatal("expected task id to be enqueued")
	}
}

func TestHandler_UnknownCommand(t *testing.T) {
	p, _, _ := newTestPool(1, nil)
	resp := roundTrip(t, p, "127.0.0.1", map[string]any{"command": "bogus", "data": map[string]any{}})
	assert.Equal(t, "error", resp.Status)
	assert.Contains(t, resp.ErrorMessage, "Invalid command bogus")
}

func TestHandler_StopInvokesHook(t *testing.T) {
	called := make(chan struct{}, 1)
	p, _, _ := newTestPool(1, func() { called <- struct{}{} })

	resp := roundTrip(t, p, "127.0.0.1", map[string]any{"command": "stop", "data": map[string]any{}})
	assert.Equal(t, "ok", resp.Status)

	select {
	case <-called:
	default:
		t.Fatal("expected stop hook to be invoked")
	}
}

func TestHandler_CancelQueuedOnly(t *testing.T) {
	p, stores, _ := newTestPool(1, nil)
	stores.Add("a0000000000000000000000000000001", nil)

	resp := roundTrip(t, p, "127.0.0.1", map[string]any{
		"command": "cancel_transfer",
		"data":    map[string]any{"task_id": "a0000000000000000000000000000001"},
	})
	assert.Equal(t, "ok", resp.Status)
	assert.Empty(t, stores.ListActive())
}

func TestHandler_CancelActiveFails(t *testing.T) {
	p, stores, _ := newTestPool(1, nil)
	stores.Add("b0000000000000000000000000000001", nil)
	stores.SetActive("b0000000000000000000000000000001")

	resp := roundTrip(t, p, "127.0.0.1", map[string]any{
		"command": "cancel_transfer",
		"data":    map[string]any{"task_id": "b0000000000000000000000000000001"},
	})
	assert.Equal(t, "error", resp.Status)
}
