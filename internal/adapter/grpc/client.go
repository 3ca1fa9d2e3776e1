package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client is a thin PerformanceService client
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient creates a client on an established connection
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// RunCalculation starts a run and blocks until its summary arrives.
// onProgress may be nil.
func (c *Client) RunCalculation(ctx context.Context, req *structpb.Struct, onProgress func(float64)) (*structpb.Struct, error) {
	if req == nil {
		req = &structpb.Struct{}
	}
	stream, err := c.conn.NewStream(ctx, &PerformanceServiceDesc.Streams[0], MethodRunCalculation)
	if err != nil {
		return nil, err
	}
	// io.EOF means the server already ended the stream; RecvMsg reports the status
	if err := stream.SendMsg(req); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	var summary *structpb.Struct
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if v, ok := msg.GetFields()["progress"]; ok && onProgress != nil {
			onProgress(v.GetNumberValue())
		}
		if v, ok := msg.GetFields()["summary"]; ok {
			summary = v.GetStructValue()
		}
	}
	if summary == nil {
		return nil, fmt.Errorf("run stream ended without a summary")
	}
	return summary, nil
}

// CancelRun cancels a run; an empty runID cancels the active run
func (c *Client) CancelRun(ctx context.Context, runID string) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(map[string]any{"run_id": runID})
	if err != nil {
		return nil, err
	}
	return c.invoke(ctx, MethodCancelRun, req)
}

// BuildTable requests a display table
func (c *Client) BuildTable(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		req = &structpb.Struct{}
	}
	return c.invoke(ctx, MethodBuildTable, req)
}

// LatestRun returns the most recent run log entry
func (c *Client) LatestRun(ctx context.Context) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodLatestRun, &structpb.Struct{})
}

func (c *Client) invoke(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, req, out); err != nil {
		return nil, err
	}
	return out, nil
}
