package grpc

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/wealthflow-performance/internal/domain"
	"github.com/simaogato/wealthflow-performance/internal/usecase/calculation"
	"github.com/simaogato/wealthflow-performance/internal/usecase/scheduler"
)

// Runner starts and cancels calculation runs
type Runner interface {
	Run(ctx context.Context, req calculation.RunRequest, progress scheduler.ProgressFunc) (*calculation.RunSummary, error)
	Cancel(runID uuid.UUID) error
}

// TableBuilder builds display tables from persisted rows
type TableBuilder interface {
	BuildTable(ctx context.Context, req calculation.TableRequest) (*calculation.Table, error)
}

// Server implements the PerformanceService gRPC server
type Server struct {
	RunService   Runner
	TableService TableBuilder
	RunLogRepo   domain.RunLogRepository

	log zerolog.Logger
}

var _ PerformanceServiceServer = (*Server)(nil)

// NewServer creates a new gRPC server instance
func NewServer(runService Runner, tableService TableBuilder, runLogRepo domain.RunLogRepository, log zerolog.Logger) *Server {
	return &Server{
		RunService:   runService,
		TableService: tableService,
		RunLogRepo:   runLogRepo,
		log:          log.With().Str("component", "grpc").Logger(),
	}
}

// RunCalculation handles the RunCalculation RPC.
// Progress ticks are streamed while the run is active; the final message carries the summary.
// Dropping the stream cancels the run.
func (s *Server) RunCalculation(req *structpb.Struct, stream grpc.ServerStream) error {
	input, err := toRunRequest(req)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "%v", err)
	}

	var mu sync.Mutex
	progress := func(percent float64) {
		msg, err := progressMessage(percent)
		if err != nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if err := stream.SendMsg(msg); err != nil {
			s.log.Debug().Err(err).Msg("failed to send progress")
		}
	}

	summary, err := s.RunService.Run(stream.Context(), input, progress)
	if err != nil {
		return mapError(err)
	}

	msg, err := summaryMessage(summary)
	if err != nil {
		return status.Errorf(codes.Internal, "failed to encode summary: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	return stream.SendMsg(msg)
}

// CancelRun handles the CancelRun RPC. An empty run_id cancels the active run.
func (s *Server) CancelRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	runID := uuid.Nil
	if raw := stringField(req, "run_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid run_id format: %v", err)
		}
		runID = id
	}

	if err := s.RunService.Cancel(runID); err != nil {
		return nil, mapError(err)
	}
	return structpb.NewStruct(map[string]any{"cancelled": true})
}

// BuildTable handles the BuildTable RPC
func (s *Server) BuildTable(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	input, err := toTableRequest(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%v", err)
	}

	table, err := s.TableService.BuildTable(ctx, input)
	if err != nil {
		return nil, mapError(err)
	}

	resp, err := tableMessage(table)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode table: %v", err)
	}
	return resp, nil
}

// LatestRun handles the LatestRun RPC
func (s *Server) LatestRun(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	entry, err := s.RunLogRepo.Latest(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return runLogMessage(entry)
}

// mapError maps domain errors to gRPC status codes
func mapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, domain.ErrRunCancelled), errors.Is(err, context.Canceled):
		return status.Errorf(codes.Canceled, "%s", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Errorf(codes.DeadlineExceeded, "%s", err.Error())
	case errors.Is(err, domain.ErrPoolComputeFailure):
		return status.Errorf(codes.Aborted, "%s", err.Error())
	case errors.Is(err, domain.ErrRunInProgress):
		return status.Errorf(codes.FailedPrecondition, "%s", err.Error())
	case errors.Is(err, domain.ErrRunNotFound):
		return status.Errorf(codes.NotFound, "%s", err.Error())
	case errors.Is(err, domain.ErrUnknownLevel):
		return status.Errorf(codes.InvalidArgument, "%s", err.Error())
	}

	// Default to Internal error for unknown errors
	return status.Errorf(codes.Internal, "%s", err.Error())
}
