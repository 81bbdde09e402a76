package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorgonia.org/tensor"

	"github.com/cartridge/prioritized-replay/internal/metrics"
	"github.com/cartridge/prioritized-replay/internal/storage"
	replayv1 "github.com/cartridge/prioritized-replay/pkg/proto/replay/v1"
)

// ReplayService implements the Replay gRPC service
type ReplayService struct {
	replayv1.UnimplementedReplayServer
	backend storage.Backend
	beta    storage.LinearSchedule
	logger  zerolog.Logger
	metrics *metrics.Collector
}

// NewReplayService creates a new ReplayService. beta supplies the
// importance-sampling exponent for requests that do not carry one.
func NewReplayService(backend storage.Backend, beta storage.LinearSchedule, logger zerolog.Logger, collector *metrics.Collector) *ReplayService {
	return &ReplayService{
		backend: backend,
		beta:    beta,
		logger:  logger.With().Str("component", "replay_service").Logger(),
		metrics: collector,
	}
}

// Push stores a batch of transitions, either as complete records or
// through the n-step window
func (s *ReplayService) Push(ctx context.Context, req *replayv1.PushRequest) (*replayv1.PushResponse, error) {
	start := time.Now()

	// Check every transition against the buffer before storing any, so a
	// rejected request leaves both the ring and the n-step window untouched
	exps := make([]storage.Experience, len(req.Transitions))
	for i, t := range req.Transitions {
		exp, err := ProtoToExperience(t)
		if err == nil {
			err = s.backend.Validate(exp)
		}
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "transition %d: %v", i, err)
		}
		exps[i] = exp
	}

	var (
		stored int
		err    error
	)
	if req.OneStep {
		for _, exp := range exps {
			var ok bool
			ok, err = s.backend.PushOneStep(ctx, exp)
			if err != nil {
				break
			}
			if ok {
				stored++
			}
		}
	} else {
		stored, err = s.backend.StoreBatch(ctx, exps)
	}
	if err != nil {
		s.logger.Warn().Err(err).Int("stored", stored).Msg("Push failed")
		return nil, statusError(err)
	}

	size := s.backend.Len()
	s.metrics.TransitionsPushed(len(exps), stored, size, time.Since(start))
	return &replayv1.PushResponse{
		Stored: uint32(stored),
		Size:   uint64(size),
	}, nil
}

// Sample draws a prioritized batch for training
func (s *ReplayService) Sample(ctx context.Context, req *replayv1.SampleRequest) (*replayv1.SampleResponse, error) {
	if req.BatchSize == 0 {
		return nil, status.Error(codes.InvalidArgument, "batch_size is required")
	}
	start := time.Now()

	beta, ok := req.GetBeta()
	if !ok {
		beta = s.beta.Value(req.Step)
	}

	batch, err := s.backend.Sample(ctx, int(req.BatchSize), beta)
	if err != nil {
		return nil, statusError(err)
	}

	resp := &replayv1.SampleResponse{
		Indices:     make([]int64, batch.Len()),
		Weights:     batch.Weights,
		Transitions: make([]*replayv1.Transition, batch.Len()),
	}
	for i, index := range batch.Indices {
		resp.Indices[i] = int64(index)
		resp.Transitions[i] = ExperienceToProto(batch.Experiences[i])
	}

	s.metrics.BatchSampled(batch.Len(), beta, time.Since(start))
	return resp, nil
}

// UpdatePriorities rewrites priorities of sampled records from their TD-errors
func (s *ReplayService) UpdatePriorities(ctx context.Context, req *replayv1.UpdatePrioritiesRequest) (*replayv1.UpdatePrioritiesResponse, error) {
	if len(req.Indices) != len(req.Errors) {
		return nil, status.Errorf(codes.InvalidArgument, "got %d indices and %d errors", len(req.Indices), len(req.Errors))
	}
	start := time.Now()

	indices := make([]int, len(req.Indices))
	for i, index := range req.Indices {
		indices[i] = int(index)
	}
	if err := s.backend.UpdatePriorities(ctx, indices, req.Errors); err != nil {
		return nil, statusError(err)
	}

	stats, err := s.backend.Stats(ctx)
	if err != nil {
		return nil, statusError(err)
	}

	s.metrics.PrioritiesUpdated(len(indices), stats.MaxPriority, time.Since(start))
	return &replayv1.UpdatePrioritiesResponse{
		Updated:     uint32(len(indices)),
		MaxPriority: stats.MaxPriority,
	}, nil
}

// GetStats returns replay buffer statistics
func (s *ReplayService) GetStats(ctx context.Context, req *replayv1.GetStatsRequest) (*replayv1.StatsResponse, error) {
	stats, err := s.backend.Stats(ctx)
	if err != nil {
		return nil, statusError(err)
	}
	return StatsToProto(stats), nil
}

// Conversion functions

// StatsToProto converts buffer statistics to the wire message
func StatsToProto(stats *storage.Stats) *replayv1.StatsResponse {
	return &replayv1.StatsResponse{
		Size:         uint64(stats.Size),
		Capacity:     uint64(stats.Capacity),
		WriteCursor:  uint64(stats.WriteCursor),
		MaxPriority:  stats.MaxPriority,
		TotalPushes:  stats.TotalPushes,
		NstepPending: uint32(stats.NStepPending),
		Compressed:   stats.Compressed,
		StorageBytes: stats.StorageBytes,
	}
}

// ProtoToExperience converts a wire transition, checking tensor sizes
func ProtoToExperience(t *replayv1.Transition) (storage.Experience, error) {
	if t == nil {
		return storage.Experience{}, status.Error(codes.InvalidArgument, "transition is required")
	}
	state, err := protoToTensor(t.State)
	if err != nil {
		return storage.Experience{}, err
	}
	nextState, err := protoToTensor(t.NextState)
	if err != nil {
		return storage.Experience{}, err
	}
	return storage.Experience{
		State:     state,
		Action:    t.Action,
		Reward:    t.Reward,
		NextState: nextState,
		Done:      t.Done,
	}, nil
}

func protoToTensor(t *replayv1.Tensor) (*tensor.Dense, error) {
	shape := make([]int, len(t.GetShape()))
	for i, dim := range t.GetShape() {
		shape[i] = int(dim)
	}
	return storage.ParseTensor(shape, t.GetData())
}

// ExperienceToProto converts an experience to its wire form
func ExperienceToProto(exp storage.Experience) *replayv1.Transition {
	return &replayv1.Transition{
		State:     tensorToProto(exp.State),
		Action:    exp.Action,
		Reward:    exp.Reward,
		NextState: tensorToProto(exp.NextState),
		Done:      exp.Done,
	}
}

func tensorToProto(d *tensor.Dense) *replayv1.Tensor {
	dims := storage.TensorShape(d)
	shape := make([]int32, len(dims))
	for i, dim := range dims {
		shape[i] = int32(dim)
	}
	return &replayv1.Tensor{Shape: shape, Data: storage.TensorValues(d)}
}
