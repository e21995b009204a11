// Package handler implements the Connection Handler Pool: a fixed set of
// workers that authorize peers, parse one framed JSON command, dispatch
// it against the shared task stores, and reply before closing the
// connection.
package handler

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"

	"github.com/ecmwf-go/retriever/internal/daemon/protocol"
	"github.com/ecmwf-go/retriever/internal/daemon/store"
	"github.com/ecmwf-go/retriever/internal/errs"
	"github.com/ecmwf-go/retriever/internal/logsink"
)

const taskIDAlphabet = "abcdefghijklmnopqrstuvwxyz"
const taskIDLength = 32

// Request is the decoded wire request.
type Request struct {
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data"`
}

// Response is the wire response envelope.
type Response struct {
	Status       string `json:"status"`
	Data         any    `json:"data,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// StopHook is invoked when a "stop" command is dispatched.
type StopHook func()

// Pool is the fixed-size Connection Handler Pool.
type Pool struct {
	size       int
	allowedIPs map[string]bool
	stores     *store.Stores
	taskQueue  chan string
	log        *logsink.Sink
	stop       StopHook
}

// New constructs a Pool of the given size.
func New(size int, allowedIPs []string, stores *store.Stores, taskQueue chan string, log *logsink.Sink, stop StopHook) *Pool {
	allowed := make(map[string]bool, len(allowedIPs))
	for _, ip := range allowedIPs {
		allowed[ip] = true
	}
	return &Pool{size: size, allowedIPs: allowed, stores: stores, taskQueue: taskQueue, log: log, stop: stop}
}

// Run launches size worker goroutines that pull connections from conns
// until it is closed, then returns once every worker has exited.
func (p *Pool) Run(conns <-chan *protocol.Conn) {
	done := make(chan struct{}, p.size)
	for i := 0; i < p.size; i++ {
		go func() {
			p.worker(conns)
			done <- struct{}{}
		}()
	}
	for i := 0; i < p.size; i++ {
		<-done
	}
}

func (p *Pool) worker(conns <-chan *protocol.Conn) {
	for conn := range conns {
		p.handle(conn)
	}
}

func (p *Pool) handle(conn *protocol.Conn) {
	defer conn.Close()

	corrID := uuid.New().String()
	host := remoteHost(conn.RemoteAddr())
	if !p.allowedIPs[host] {
		p.log.Warning(fmt.Sprintf("[%s] Unauthorized connection from %s", corrID, host))
		return
	}
	p.log.Info(fmt.Sprintf("[%s] Accepted connection from %s", corrID, host))

	message, ok, err := conn.Receive()
	if err != nil {
		p.log.Warning(fmt.Sprintf("[%s] Error while receiving message: %v", corrID, err))
		return
	}
	if !ok {
		return
	}

	var req Request
	if err := json.Unmarshal([]byte(message), &req); err != nil {
		// The reference implementation treats malformed JSON as fatal to
		// the handler thread; this implementation downgrades to a clean
		// error response per spec.md §7's acknowledged-hardness guidance.
		p.log.Err(fmt.Sprintf("[%s] Invalid JSON message: %s. Error: %v", corrID, message, err))
		p.reply(conn, corrID, Response{Status: "error", ErrorMessage: "Invalid request: malformed JSON"})
		return
	}

	resp := p.dispatch(corrID, req)
	p.reply(conn, corrID, resp)
}

func (p *Pool) reply(conn *protocol.Conn, corrID string, resp Response) {
	body, err := json.Marshal(resp)
	if err != nil {
		p.log.Err(fmt.Sprintf("[%s] failed to encode response: %v", corrID, err))
		return
	}
	if err := conn.Send(string(body)); err != nil {
		p.log.Warning(fmt.Sprintf("[%s] failed to send response: %v", corrID, err))
	}
}

// dispatch logs every command under corrID, the per-connection
// correlation id assigned in handle, so concurrent connections' log
// lines can be told apart.
func (p *Pool) dispatch(corrID string, req Request) Response {
	p.log.Info(fmt.Sprintf("[%s] dispatching %s", corrID, req.Command))

	switch req.Command {
	case "heartbeat":
		return Response{Status: "ok", Data: map[string]any{}}

	case "list_active_transfers":
		return Response{Status: "ok", Data: p.stores.ListActive()}

	case "list_completed_transfers":
		return Response{Status: "ok", Data: p.stores.ListCompleted()}

	case "add_transfer":
		var params map[string]string
		if err := json.Unmarshal(req.Data, &params); err != nil {
			return Response{Status: "error", ErrorMessage: "Invalid transfer parameters"}
		}
		taskID, err := p.addTransfer(params)
		if err != nil {
			p.log.Err(fmt.Sprintf("[%s] add_transfer failed: %v", corrID, err))
			return Response{Status: "error", ErrorMessage: "Failed to add the transfer"}
		}
		p.log.Info(fmt.Sprintf("[%s] added transfer %s", corrID, taskID))
		return Response{Status: "ok", Data: map[string]any{"task_id": taskID}}

	case "cancel_transfer":
		var body struct {
			TaskID string `json:"task_id"`
		}
		if err := json.Unmarshal(req.Data, &body); err != nil || body.TaskID == "" {
			return Response{Status: "error", ErrorMessage: "Invalid cancel_transfer request"}
		}
		if !p.stores.Cancel(body.TaskID) {
			return Response{Status: "error", ErrorMessage: "Only queued transfers can be cancelled"}
		}
		return Response{Status: "ok", Data: map[string]any{}}

	case "stop":
		if p.stop != nil {
			p.stop()
		}
		return Response{Status: "ok", Data: map[string]any{}}

	default:
		return Response{Status: "error", ErrorMessage: fmt.Sprintf("Invalid command %s", req.Command)}
	}
}

func (p *Pool) addTransfer(params map[string]string) (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		taskID, err := randomTaskID()
		if err != nil {
			return "", errs.NewHandlerError("generating task id", err)
		}
		if p.stores.Exists(taskID) {
			continue
		}
		p.stores.Add(taskID, params)
		p.taskQueue <- taskID
		return taskID, nil
	}
	return "", errs.NewHandlerError("could not generate a unique task id", nil)
}

func randomTaskID() (string, error) {
	buf := make([]byte, taskIDLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.Grow(taskIDLength)
	for _, b := range buf {
		sb.WriteByte(taskIDAlphabet[int(b)%len(taskIDAlphabet)])
	}
	return sb.String(), nil
}

func remoteHost(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
