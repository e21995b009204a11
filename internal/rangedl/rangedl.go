// Package rangedl implements the Robust Range Downloader: HEAD for size,
// then serial or worker-pool parallel block fetch via HTTP Range, with
// per-block retry and strictly ordered reassembly into the sink.
//
// The parallel writer is redesigned from the original's 100ms busy-wait
// poll into a condition-variable wait, woken on every block arrival —
// same ordering guarantee, no idle spinning.
package rangedl

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ecmwf-go/retriever/internal/errs"
	"github.com/ecmwf-go/retriever/internal/httpclient"
	"github.com/ecmwf-go/retriever/internal/tracing"
)

const instrumentationName = "github.com/ecmwf-go/retriever/internal/rangedl"

const (
	MinBlockSize = 512
	MaxBlockSize = 268_435_456
	MinTimeout   = 1
	MaxTimeout   = 86_400

	headRetries  = 5
	blockRetries = 7
)

// Block describes one partition of the target artifact.
type Block struct {
	ID    int
	Start int64
	End   int64 // inclusive
}

// Downloader drives the Range Downloader procedure against a single URL.
type Downloader struct {
	client *httpclient.Client
	tracer trace.Tracer
}

func New(disableSSLValidation bool) *Downloader {
	return &Downloader{
		client: httpclient.New(disableSSLValidation),
		tracer: noop.NewTracerProvider().Tracer(instrumentationName),
	}
}

// WithTracer attaches an OpenTelemetry tracer, wrapping every block
// fetch in a retriever.download.block span.
func (d *Downloader) WithTracer(tracer trace.Tracer) *Downloader {
	d.tracer = tracer
	return d
}

func validate(blockSize, timeoutSeconds int) error {
	if blockSize < MinBlockSize || blockSize > MaxBlockSize {
		return errs.NewHttpError(fmt.Sprintf("block size %d out of range [%d, %d]", blockSize, MinBlockSize, MaxBlockSize), nil)
	}
	if timeoutSeconds < MinTimeout || timeoutSeconds > MaxTimeout {
		return errs.NewHttpError(fmt.Sprintf("timeout %d out of range [%d, %d]", timeoutSeconds, MinTimeout, MaxTimeout), nil)
	}
	return nil
}

func partition(contentLength int64, blockSize int) []Block {
	if contentLength == 0 {
		return nil
	}
	var blocks []Block
	id := 0
	var start int64
	for start < contentLength {
		end := start + int64(blockSize) - 1
		if end >= contentLength {
			end = contentLength - 1
		}
		blocks = append(blocks, Block{ID: id, Start: start, End: end})
		start = end + 1
		id++
	}
	return blocks
}

// head issues a HEAD with up to headRetries retries, returning
// Content-Length. Fails fast with HttpError if the header is absent.
func (d *Downloader) head(ctx context.Context, url string, timeoutSeconds int) (int64, error) {
	var lastErr error
	for attempt := 0; attempt <= headRetries; attempt++ {
		resp, err := d.client.Head(ctx, url, nil, secondsToDuration(timeoutSeconds))
		if err == nil {
			cl := resp.Headers.Get("Content-Length")
			if cl == "" {
				return 0, errs.NewHttpError("Content length not set", nil)
			}
			var n int64
			if _, scanErr := fmt.Sscanf(cl, "%d", &n); scanErr != nil {
				return 0, errs.NewHttpError("Content length not set", scanErr)
			}
			return n, nil
		}
		lastErr = err
	}
	return 0, errs.NewHttpError(fmt.Sprintf("failed to retrieve header information for %s after %d retries", url, headRetries), lastErr)
}

// getBlock fetches one Range-bounded block, retrying up to blockRetries
// times on any error.
func (d *Downloader) getBlock(ctx context.Context, url string, b Block, timeoutSeconds int) (data []byte, err error) {
	ctx, span := tracing.StartDownloadBlock(ctx, d.tracer, b.ID, int(b.Start), int(b.End))
	defer func() { tracing.End(span, err) }()

	headers := map[string]string{"Range": fmt.Sprintf("bytes=%d-%d", b.Start, b.End)}
	var lastErr error
	for attempt := 0; attempt < blockRetries; attempt++ {
		resp, getErr := d.client.Get(ctx, url, headers, secondsToDuration(timeoutSeconds))
		if getErr == nil {
			return resp.Body, nil
		}
		lastErr = getErr
	}
	de := errs.NewDownloadError(b.ID, lastErr)
	return nil, errs.AsHttpError(fmt.Sprintf("downloading of block %d failed after %d retries", b.ID, blockRetries), de)
}

// DownloadSerial fetches each block in order and appends it to sink.
func (d *Downloader) DownloadSerial(ctx context.Context, url string, sink io.Writer, blockSize, timeoutSeconds int) (int64, error) {
	if err := validate(blockSize, timeoutSeconds); err != nil {
		return 0, err
	}
	contentLength, err := d.head(ctx, url, timeoutSeconds)
	if err != nil {
		return 0, err
	}
	for _, b := range partition(contentLength, blockSize) {
		data, err := d.getBlock(ctx, url, b, timeoutSeconds)
		if err != nil {
			return 0, err
		}
		if _, err := sink.Write(data); err != nil {
			return 0, errs.NewHttpError("writing block to sink", err)
		}
	}
	return contentLength, nil
}

// DownloadParallel dispatches blocks across threadCount workers. A
// dedicated writer goroutine appends blocks to sink in strict ascending
// order, blocking on a condition variable (rather than busy-waiting)
// until the next expected block has arrived.
func (d *Downloader) DownloadParallel(ctx context.Context, url string, sink io.Writer, blockSize, timeoutSeconds, threadCount int) (int64, error) {
	if err := validate(blockSize, timeoutSeconds); err != nil {
		return 0, err
	}
	contentLength, err := d.head(ctx, url, timeoutSeconds)
	if err != nil {
		return 0, err
	}
	blocks := partition(contentLength, blockSize)
	if len(blocks) == 0 {
		return contentLength, nil
	}

	work := make(chan Block, len(blocks))
	for _, b := range blocks {
		work <- b
	}
	close(work)

	results := newResultBuffer()
	var wg sync.WaitGroup
	errCh := make(chan error, threadCount)

	for i := 0; i < threadCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range work {
				data, err := d.getBlock(ctx, url, b, timeoutSeconds)
				if err != nil {
					select {
					case errCh <- err:
					default:
					}
					results.abort()
					return
				}
				results.put(b.ID, data)
			}
		}()
	}

	done := make(chan struct{})
	var writeErr error
	go func() {
		defer close(done)
		for next := 0; next < len(blocks); next++ {
			data, ok := results.take(next)
			if !ok {
				return // aborted
			}
			if _, err := sink.Write(data); err != nil {
				writeErr = errs.NewHttpError("writing block to sink", err)
				results.abort()
				return
			}
		}
	}()

	wg.Wait()
	<-done

	select {
	case err := <-errCh:
		return 0, err
	default:
	}
	if writeErr != nil {
		return 0, writeErr
	}
	return contentLength, nil
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
