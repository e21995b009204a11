// Package client implements the daemon command wire protocol from the
// caller's side: dial, send one framed JSON request, receive one framed
// JSON response, close. Used by the CLI's `daemon`/`transfer` commands.
package client

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/ecmwf-go/retriever/internal/daemon/handler"
	"github.com/ecmwf-go/retriever/internal/daemon/protocol"
)

// DefaultAddr is the daemon's default localhost address.
const DefaultAddr = "127.0.0.1:54500"

// ErrCommunicationFailure is the status the original CLI reports when it
// cannot reach the daemon at all (connection refused, dial timeout).
const ErrCommunicationFailure = "API communication failure"

// Send dials addr, sends one {command, data} request, and returns the
// decoded response. A dial or frame-level failure is folded into a
// synthetic {status: "error"} response rather than surfaced as a Go
// error, matching the original client's behavior of always returning a
// response dict to its caller.
func Send(addr, command string, data any) handler.Response {
	if data == nil {
		data = map[string]any{}
	}

	conn, err := net.DialTimeout("tcp", addr, 3*time.Second)
	if err != nil {
		return handler.Response{Status: "error", ErrorMessage: ErrCommunicationFailure}
	}
	defer conn.Close()

	sock := protocol.New(conn, protocol.DefaultTimeout)

	body, err := json.Marshal(handler.Request{Command: command, Data: marshalData(data)})
	if err != nil {
		return handler.Response{Status: "error", ErrorMessage: ErrCommunicationFailure}
	}

	if err := sock.Send(string(body)); err != nil {
		return handler.Response{Status: "error", ErrorMessage: ErrCommunicationFailure}
	}

	text, ok, err := sock.Receive()
	if err != nil || !ok {
		return handler.Response{Status: "error", ErrorMessage: ErrCommunicationFailure}
	}

	var resp handler.Response
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return handler.Response{Status: "error", ErrorMessage: ErrCommunicationFailure}
	}
	return resp
}

func marshalData(data any) json.RawMessage {
	raw, err := json.Marshal(data)
	if err != nil {
		return json.RawMessage("{}")
	}
	return raw
}

// Status reports whether the daemon at addr answers a heartbeat.
func Status(addr string) (running bool, message string) {
	resp := Send(addr, "heartbeat", nil)
	if resp.Status == "ok" {
		return true, "The background client is active"
	}
	return false, "The background client is not running"
}

// Stop asks the daemon to shut down. Per the original client, an
// "active transfers will be finished" disclaimer is part of the
// success message: the stop hook only interrupts the accept loop.
func Stop(addr string) (stopped bool, message string) {
	resp := Send(addr, "stop", nil)
	if resp.Status == "ok" {
		return true, "The background client has been stopped. Any active transfers will be finished."
	}
	return false, "The background client was not active"
}

// AddTransfer submits transfer parameters and returns the assigned task
// id.
func AddTransfer(addr string, params map[string]string) (taskID string, err error) {
	resp := Send(addr, "add_transfer", params)
	if resp.Status != "ok" {
		return "", fmt.Errorf("adding the transfer: %s", resp.ErrorMessage)
	}
	data, ok := resp.Data.(map[string]any)
	if !ok {
		return "", fmt.Errorf("adding the transfer: malformed response")
	}
	id, _ := data["task_id"].(string)
	return id, nil
}

// CancelTransfer asks the daemon to cancel a queued task.
func CancelTransfer(addr, taskID string) error {
	resp := Send(addr, "cancel_transfer", map[string]string{"task_id": taskID})
	if resp.Status != "ok" {
		return fmt.Errorf("cancelling the transfer: %s", resp.ErrorMessage)
	}
	return nil
}

// TransferSummary mirrors store.Summary for CLI-side rendering without
// importing the daemon's internal store package.
type TransferSummary struct {
	TaskID     string `json:"task_id"`
	TaskAdded  string `json:"task_added"`
	TaskStatus string `json:"task_status"`
}

// ListTransfers lists either the active or the completed transfers.
func ListTransfers(addr string, completed bool) ([]TransferSummary, error) {
	command := "list_active_transfers"
	if completed {
		command = "list_completed_transfers"
	}

	resp := Send(addr, command, nil)
	if resp.Status != "ok" {
		return nil, fmt.Errorf("listing transfers: %s", resp.ErrorMessage)
	}

	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("listing transfers: %w", err)
	}
	var out []TransferSummary
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("listing transfers: %w", err)
	}
	return out, nil
}
