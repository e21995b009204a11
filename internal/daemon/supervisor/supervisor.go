// Package supervisor implements the Process Supervisor: the daemon boot
// sequence, signal handling, and orderly poison-pill shutdown tying the
// connection-handler pool, the transfer-worker pool, and the server loop
// together.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ecmwf-go/retriever/internal/apisession"
	"github.com/ecmwf-go/retriever/internal/credentials"
	"github.com/ecmwf-go/retriever/internal/daemon/handler"
	"github.com/ecmwf-go/retriever/internal/daemon/protocol"
	"github.com/ecmwf-go/retriever/internal/daemon/server"
	"github.com/ecmwf-go/retriever/internal/daemon/store"
	"github.com/ecmwf-go/retriever/internal/daemon/worker"
	"github.com/ecmwf-go/retriever/internal/logsink"
	"github.com/ecmwf-go/retriever/internal/tracing"
)

const (
	// ListenAddr is the daemon's default bind address, per spec.md §4.6.
	ListenAddr = "0.0.0.0:54500"

	connectionHandlerCount  = 8
	transferWorkerCount     = 5
	taskQueueCapacity       = 1000
	connectionQueueCapacity = 25
)

// Config bundles the inputs the supervisor needs to boot the daemon.
type Config struct {
	ListenAddr     string
	AllowedPeers   []string
	ConfigFilePath string
	Log            *logsink.Sink
	Tracing        *tracing.Provider
}

// Supervisor owns every daemon subsystem and coordinates orderly
// shutdown.
type Supervisor struct {
	cfg Config

	stores      *store.Stores
	taskQueue   chan string
	connQueue   chan *protocol.Conn
	handlerPool *handler.Pool
	workerPool  *worker.Pool
	serverLoop  *server.Loop

	stopOnce sync.Once
}

// New boots every daemon subsystem: logger (supplied by the caller),
// active/completed stores, the bounded task and connection queues, the
// connection-handler pool, the transfer-worker pool, and the server
// loop — in that order, matching spec.md §4.9.
func New(cfg Config) *Supervisor {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ListenAddr
	}
	if cfg.Log == nil {
		cfg.Log = logsink.New(func(string, logsink.Level) {})
	}

	s := &Supervisor{
		cfg:       cfg,
		stores:    store.New(),
		taskQueue: make(chan string, taskQueueCapacity),
		connQueue: make(chan *protocol.Conn, connectionQueueCapacity),
	}

	s.handlerPool = handler.New(connectionHandlerCount, cfg.AllowedPeers, s.stores, s.taskQueue, cfg.Log, s.Stop)
	s.workerPool = worker.New(transferWorkerCount, s.stores, s.processTask)
	s.serverLoop = server.New(cfg.ListenAddr, s.connQueue, cfg.Log)

	return s
}

// Run starts the server loop, the connection-handler pool and the
// transfer-worker pool, installs a SIGINT/SIGTERM handler that invokes
// Stop, and blocks until shutdown is complete.
func (s *Supervisor) Run(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		s.cfg.Log.Info("Received interrupt, shutting down")
		s.Stop()
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.handlerPool.Run(s.connQueue)
	}()
	go func() {
		defer wg.Done()
		s.workerPool.Run(ctx, s.taskQueue)
	}()

	err := s.serverLoop.Run()

	// The server loop has stopped accepting. Closing a channel is Go's
	// native poison pill: every pool worker's `range` loop drains
	// whatever is queued, then exits once the channel is empty and
	// closed — no sentinel values needed.
	s.stopOnce.Do(func() {
		close(s.connQueue)
		close(s.taskQueue)
	})

	wg.Wait()
	return err
}

// Stop is the cooperative stop hook: it signals the server loop, whose
// next accept-timeout tick causes Run to return and begin the
// poison-pill drain. Safe to call multiple times and from any
// goroutine, including a connection-handler thread processing a "stop"
// command.
func (s *Supervisor) Stop() {
	s.serverLoop.Stop()
}

// processTask is the Transfer Worker Pool's Processor: it builds a
// fresh API Session from ambient credentials and drives the request to
// completion, matching spec.md §4.8 ("constructs an API Session using
// the ambient credentials, calls retrieve(task_data)").
func (s *Supervisor) processTask(ctx context.Context, data map[string]string) error {
	creds, err := credentials.Discover(credentials.Credentials{}, s.cfg.ConfigFilePath)
	if err != nil {
		return fmt.Errorf("discovering credentials: %w", err)
	}

	session, err := apisession.New(ctx, creds.URL, data["dataset"], creds.Email, creds.Key, s.logFunc(),
		apisession.WithTracer(s.cfg.Tracing.Tracer()))
	if err != nil {
		return fmt.Errorf("opening API session: %w", err)
	}

	return session.TransferRequest(ctx, data, data["target"])
}

func (s *Supervisor) logFunc() apisession.LogFunc {
	return func(message string, level logsink.Level, requestID int) {
		s.cfg.Log.Log(message, level, requestID)
	}
}
