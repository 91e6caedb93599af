package provider

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// GRPCHandlers adapt generated gRPC clients to the Transport surface. A nil
// handler makes the matching method fail with errors.ErrUnsupported.
type GRPCHandlers struct {
	CreateJob  func(ctx context.Context, conn grpc.ClientConnInterface, req JobRequest) (*Job, error)
	GetJob     func(ctx context.Context, conn grpc.ClientConnInterface, id string) (*Job, error)
	CancelJob  func(ctx context.Context, conn grpc.ClientConnInterface, id string) (*Job, error)
	ListModels func(ctx context.Context, conn grpc.ClientConnInterface) ([]Model, error)
	GetModel   func(ctx context.Context, conn grpc.ClientConnInterface, owner, name string) (*Model, error)
}

// GRPCTransport implements Transport over gRPC.
type GRPCTransport struct {
	name     string
	token    string
	conn     grpc.ClientConnInterface
	closer   func() error
	handlers GRPCHandlers
}

// NewGRPCTransport creates a new gRPC transport for endpoint. TLS is used for
// "https://" endpoints and port 443.
func NewGRPCTransport(name, endpoint, token string, h GRPCHandlers) (*GRPCTransport, error) {
	target := endpoint
	var opts []grpc.DialOption

	if strings.HasPrefix(endpoint, "https://") || strings.HasSuffix(endpoint, ":443") {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		target = strings.TrimPrefix(target, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(target, "http://")
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", target, err)
	}

	t := NewGRPCTransportWithConn(name, conn, token, h)
	t.closer = conn.Close
	return t, nil
}

// NewGRPCTransportWithConn wraps an existing connection.
func NewGRPCTransportWithConn(
	name string,
	conn grpc.ClientConnInterface,
	token string,
	h GRPCHandlers,
) *GRPCTransport {
	if name == "" {
		name = "grpc"
	}
	return &GRPCTransport{name: name, token: token, conn: conn, handlers: h}
}

// Name returns the transport's name.
func (t *GRPCTransport) Name() string {
	return t.name
}

func (t *GRPCTransport) CreateJob(ctx context.Context, req JobRequest) (*Job, error) {
	if t.handlers.CreateJob == nil {
		return nil, unsupported("createJob")
	}
	if req.IdempotencyKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "idempotency-key", req.IdempotencyKey)
	}
	job, err := t.handlers.CreateJob(t.outgoing(ctx), t.conn, req)
	return job, fromStatus("createJob", err)
}

func (t *GRPCTransport) GetJob(ctx context.Context, id string) (*Job, error) {
	if t.handlers.GetJob == nil {
		return nil, unsupported("getJob")
	}
	job, err := t.handlers.GetJob(t.outgoing(ctx), t.conn, id)
	return job, fromStatus("getJob", err)
}

func (t *GRPCTransport) CancelJob(ctx context.Context, id string) (*Job, error) {
	if t.handlers.CancelJob == nil {
		return nil, unsupported("cancelJob")
	}
	job, err := t.handlers.CancelJob(t.outgoing(ctx), t.conn, id)
	return job, fromStatus("cancelJob", err)
}

func (t *GRPCTransport) ListModels(ctx context.Context) ([]Model, error) {
	if t.handlers.ListModels == nil {
		return nil, unsupported("listModels")
	}
	models, err := t.handlers.ListModels(t.outgoing(ctx), t.conn)
	return models, fromStatus("listModels", err)
}

func (t *GRPCTransport) GetModel(ctx context.Context, owner, name string) (*Model, error) {
	if t.handlers.GetModel == nil {
		return nil, unsupported("getModel")
	}
	m, err := t.handlers.GetModel(t.outgoing(ctx), t.conn, owner, name)
	return m, fromStatus("getModel", err)
}

// Close cleans up resources.
func (t *GRPCTransport) Close() error {
	if t.closer == nil {
		return nil
	}
	return t.closer()
}

func (t *GRPCTransport) outgoing(ctx context.Context) context.Context {
	if t.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+t.token)
}

func unsupported(op string) error {
	return fmt.Errorf("%s: %w by grpc transport", op, errors.ErrUnsupported)
}

// grpcHTTPStatus maps gRPC codes to their HTTP equivalents.
var grpcHTTPStatus = map[codes.Code]int{
	codes.InvalidArgument:    http.StatusBadRequest,
	codes.FailedPrecondition: http.StatusBadRequest,
	codes.OutOfRange:         http.StatusBadRequest,
	codes.Unauthenticated:    http.StatusUnauthorized,
	codes.PermissionDenied:   http.StatusForbidden,
	codes.NotFound:           http.StatusNotFound,
	codes.AlreadyExists:      http.StatusConflict,
	codes.Aborted:            http.StatusConflict,
	codes.ResourceExhausted:  http.StatusTooManyRequests,
	codes.Unimplemented:      http.StatusNotImplemented,
	codes.Internal:           http.StatusInternalServerError,
	codes.Unknown:            http.StatusInternalServerError,
	codes.DataLoss:           http.StatusInternalServerError,
	codes.Unavailable:        http.StatusServiceUnavailable,
}

// fromStatus converts a gRPC status error into an APIError. Deadline and
// cancellation codes carry no status so that they classify by message.
func fromStatus(op string, err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%s: %w", op, err)
	}

	e := &APIError{
		Operation: op,
		Status:    grpcHTTPStatus[st.Code()],
		ErrCode:   st.Code().String(),
		Detail:    st.Message(),
	}
	switch st.Code() {
	case codes.DeadlineExceeded:
		e.Detail = "deadline exceeded: " + st.Message()
	case codes.Canceled:
		e.Detail = "canceled: " + st.Message()
	}

	for _, d := range st.Details() {
		switch info := d.(type) {
		case *errdetails.RetryInfo:
			if info.GetRetryDelay() != nil {
				e.Wait = max(info.GetRetryDelay().AsDuration(), 0)
			}
		case *errdetails.ErrorInfo:
			if info.GetReason() != "" {
				e.ErrCode = info.GetReason()
			}
		case *errdetails.QuotaFailure:
			if e.Status == 0 {
				e.Status = http.StatusTooManyRequests
			}
		}
	}
	return e
}
