package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/cartridge/prioritized-replay/internal/service"
	"github.com/cartridge/prioritized-replay/internal/storage"
	replayv1 "github.com/cartridge/prioritized-replay/pkg/proto/replay/v1"
)

// Dial connects to a replay server without transport security
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, replayv1.ReplayClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to replay at %s: %w", addr, err)
	}
	return conn, replayv1.NewReplayClient(conn), nil
}

// Writer buffers transitions from a data-collection worker and sends them
// to the replay server in batches
type Writer struct {
	client    replayv1.ReplayClient
	batchSize int
	oneStep   bool
	logger    zerolog.Logger

	mu     sync.Mutex // guards buffer and serializes flushes
	buffer []*replayv1.Transition
}

// NewWriter creates a Writer that flushes every batchSize transitions.
// With oneStep set the server folds the transitions into n-step returns,
// so a single Writer must carry one environment's transitions in order.
func NewWriter(client replayv1.ReplayClient, batchSize int, oneStep bool, logger zerolog.Logger) *Writer {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Writer{
		client:    client,
		batchSize: batchSize,
		oneStep:   oneStep,
		logger:    logger.With().Str("component", "replay_writer").Logger(),
		buffer:    make([]*replayv1.Transition, 0, batchSize),
	}
}

// Add buffers one experience and flushes if the batch is full
func (w *Writer) Add(ctx context.Context, exp storage.Experience) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buffer = append(w.buffer, service.ExperienceToProto(exp))
	if len(w.buffer) < w.batchSize {
		return nil
	}
	return w.flushLocked(ctx)
}

// Flush sends every buffered transition
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(ctx)
}

// Pending returns the number of buffered transitions
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buffer)
}

// Run flushes partial batches every interval until ctx is cancelled, then
// makes a final flush bounded by the same interval
func (w *Writer) Run(ctx context.Context, interval time.Duration) error {
	flushTicker := time.NewTicker(interval)
	defer flushTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			if err := w.Flush(finalCtx); err != nil {
				w.logger.Error().Err(err).Msg("Failed to flush buffer on shutdown")
			}
			return ctx.Err()

		case <-flushTicker.C:
			if err := w.Flush(ctx); err != nil {
				w.logger.Warn().Err(err).Msg("Failed to flush buffer")
			}
		}
	}
}

// flushLocked keeps the buffer when the push fails so the next flush
// retries it, unless the server rejected the batch as invalid
func (w *Writer) flushLocked(ctx context.Context) error {
	if len(w.buffer) == 0 {
		return nil
	}

	resp, err := w.client.Push(ctx, &replayv1.PushRequest{
		Transitions: w.buffer,
		OneStep:     w.oneStep,
	})
	if status.Code(err) == codes.InvalidArgument {
		// The server rejected the whole batch and stored none of it; a
		// retry would be rejected again
		w.logger.Error().Err(err).Int("dropped", len(w.buffer)).Msg("Replay service rejected batch")
		w.buffer = make([]*replayv1.Transition, 0, w.batchSize)
		return fmt.Errorf("batch rejected: %w", err)
	}
	if err != nil {
		return fmt.Errorf("failed to push batch: %w", err)
	}

	w.logger.Debug().
		Int("sent", len(w.buffer)).
		Uint32("stored", resp.Stored).
		Uint64("size", resp.Size).
		Msg("Flushed transitions to replay service")

	w.buffer = make([]*replayv1.Transition, 0, w.batchSize)
	return nil
}
