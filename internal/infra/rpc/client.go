package rpc

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/vietddude/vidgate/internal/infra/rpc/classify"
	"github.com/vietddude/vidgate/internal/infra/rpc/provider"
	"github.com/vietddude/vidgate/internal/infra/rpc/retry"
	"github.com/vietddude/vidgate/internal/metrics"
)

const tracerName = "github.com/vietddude/vidgate/internal/infra/rpc"

// Recorder receives the outcome of every monitored call.
type Recorder interface {
	RecordSuccess(ctx context.Context, targetID, operation string, d time.Duration, callCtx map[string]any)
	RecordFailure(ctx context.Context, targetID, operation string, err error, d time.Duration, callCtx map[string]any)
}

// MonitorContext binds calls to a monitored target.
type MonitorContext struct {
	TargetID string
	// RequestID correlates metrics with the caller's request, optional.
	RequestID string
}

// Client is the high-level interface for calling the generation API.
// A Client is immutable after construction and safe to share; WithContext
// derives bound copies.
type Client struct {
	transport provider.Transport
	engine    *retry.Engine
	policies  Policies
	recorder  Recorder
	monitor   *MonitorContext
	limiter   *rate.Limiter
	tracer    trace.Tracer
	log       *slog.Logger
	newKey    func() string
	now       func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithEngine sets the retry engine.
func WithEngine(e *retry.Engine) Option {
	return func(c *Client) { c.engine = e }
}

// WithPolicies sets the per-operation retry policies. Unset entries keep
// their defaults.
func WithPolicies(p Policies) Option {
	return func(c *Client) { c.policies = p.WithDefaults() }
}

// WithRecorder sets where monitored outcomes go.
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// WithLimiter throttles attempts client-side. Retries wait too.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithTracer sets the tracer. Defaults to the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithIdempotencyKeys sets the generator for CreateJob idempotency keys.
func WithIdempotencyKeys(fn func() string) Option {
	return func(c *Client) { c.newKey = fn }
}

// WithClock replaces time.Now for elapsed-time measurement.
func WithClock(fn func() time.Time) Option {
	return func(c *Client) { c.now = fn }
}

// NewClient creates a client over transport.
func NewClient(transport provider.Transport, opts ...Option) *Client {
	c := &Client{
		transport: transport,
		policies:  DefaultPolicies(),
		tracer:    otel.Tracer(tracerName),
		log:       slog.Default(),
		newKey:    uuid.NewString,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.engine == nil {
		c.engine = retry.NewEngine(
			retry.WithLogger(c.log),
			retry.WithRetryObserver(CountRetries),
		)
	}
	return c
}

// CountRetries is a retry.RetryObserver feeding the retry counter.
func CountRetries(operation string, kind classify.Kind, attempt int, delay time.Duration) {
	metrics.APIRetriesTotal.WithLabelValues(operation, string(kind)).Inc()
}

// WithContext returns a copy of c bound to mc. c is not modified.
func (c *Client) WithContext(mc MonitorContext) *Client {
	cp := *c
	cp.monitor = &mc
	return &cp
}

// MonitorContext returns the bound monitoring context, if any.
func (c *Client) MonitorContext() (MonitorContext, bool) {
	if c.monitor == nil {
		return MonitorContext{}, false
	}
	return *c.monitor, true
}

// Policies returns the effective retry policies.
func (c *Client) Policies() Policies {
	return c.policies
}

// Transport returns the underlying transport.
func (c *Client) Transport() provider.Transport {
	return c.transport
}

// CreateJob starts a generation job. All attempts share one idempotency key.
func (c *Client) CreateJob(ctx context.Context, req provider.JobRequest) (*provider.Job, error) {
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.newKey()
	}
	callCtx := map[string]any{"inputKeys": inputKeys(req.Input)}
	if req.Model != "" {
		callCtx["model"] = req.Model
	}
	if req.Version != "" {
		callCtx["version"] = req.Version
	}
	if req.Webhook != "" {
		callCtx["hasWebhook"] = true
	}

	return call(ctx, c, OpCreateJob, callCtx,
		func(ctx context.Context) (*provider.Job, error) {
			return c.transport.CreateJob(ctx, req)
		},
		jobContext,
	)
}

// GetJob fetches a job.
func (c *Client) GetJob(ctx context.Context, id string) (*provider.Job, error) {
	return call(ctx, c, OpGetJob, map[string]any{"jobId": id},
		func(ctx context.Context) (*provider.Job, error) {
			return c.transport.GetJob(ctx, id)
		},
		jobContext,
	)
}

// CancelJob cancels a job.
func (c *Client) CancelJob(ctx context.Context, id string) (*provider.Job, error) {
	return call(ctx, c, OpCancelJob, map[string]any{"jobId": id},
		func(ctx context.Context) (*provider.Job, error) {
			return c.transport.CancelJob(ctx, id)
		},
		jobContext,
	)
}

// ListModels lists the models (capabilities) available to the client.
func (c *Client) ListModels(ctx context.Context) ([]provider.Model, error) {
	return call(ctx, c, OpListModels, nil,
		c.transport.ListModels,
		func(ms []provider.Model) map[string]any {
			return map[string]any{"modelCount": len(ms)}
		},
	)
}

// GetModel describes one model.
func (c *Client) GetModel(ctx context.Context, owner, name string) (*provider.Model, error) {
	return call(ctx, c, OpGetModel, map[string]any{"model": owner + "/" + name},
		func(ctx context.Context) (*provider.Model, error) {
			return c.transport.GetModel(ctx, owner, name)
		},
		func(m *provider.Model) map[string]any {
			if m == nil || m.LatestVersion == "" {
				return nil
			}
			return map[string]any{"version": m.LatestVersion}
		},
	)
}

// call runs fn under the operation's policy and reports the outcome.
func call[T any](
	ctx context.Context,
	c *Client,
	op string,
	callCtx map[string]any,
	fn retry.Operation[T],
	resultCtx func(T) map[string]any,
) (T, error) {
	attrs := []attribute.KeyValue{
		attribute.String("rpc.operation", op),
		attribute.String("rpc.transport", c.transport.Name()),
	}
	if c.monitor != nil {
		attrs = append(attrs, attribute.String("vidgate.target", c.monitor.TargetID))
	}
	ctx, span := c.tracer.Start(ctx, "vidgate.rpc."+op, trace.WithAttributes(attrs...))
	defer span.End()

	attempt := fn
	if c.limiter != nil {
		attempt = func(ctx context.Context) (T, error) {
			if err := c.limiter.Wait(ctx); err != nil {
				var zero T
				return zero, err
			}
			return fn(ctx)
		}
	}

	start := c.now()
	stats, err := retry.ExecuteWithStats(ctx, c.engine, op, c.policies.For(op), attempt)
	elapsed := c.now().Sub(start)

	metrics.APICallLatency.WithLabelValues(op).Observe(elapsed.Seconds())
	span.SetAttributes(attribute.Int("rpc.attempts", stats.Attempts))

	if err != nil {
		ce := terminalError(err)
		metrics.APICallsTotal.WithLabelValues(op, "failure").Inc()
		metrics.APIErrorsTotal.WithLabelValues(op, string(ce.Kind)).Inc()
		span.SetAttributes(
			attribute.String("error.kind", string(ce.Kind)),
			attribute.Bool("error.retryable", ce.Retryable),
		)
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, string(ce.Kind))

		c.log.Debug("API call failed",
			"operation", op,
			"attempts", stats.Attempts,
			"kind", ce.Kind,
			"error", err,
		)
		if c.monitor != nil && c.recorder != nil {
			rc := c.recordContext(callCtx, nil)
			rc["attempts"] = stats.Attempts
			c.recorder.RecordFailure(context.WithoutCancel(ctx), c.monitor.TargetID, op, ce, elapsed, rc)
		}
		var zero T
		return zero, ce
	}

	metrics.APICallsTotal.WithLabelValues(op, "success").Inc()
	span.SetStatus(otelcodes.Ok, "")

	if c.monitor != nil && c.recorder != nil {
		var extra map[string]any
		if resultCtx != nil {
			extra = resultCtx(stats.Result)
		}
		rc := c.recordContext(callCtx, extra)
		rc["attempts"] = stats.Attempts
		c.recorder.RecordSuccess(context.WithoutCancel(ctx), c.monitor.TargetID, op, elapsed, rc)
	}
	return stats.Result, nil
}

// terminalError presents any engine failure as a ClassifiedError. Exhausted
// retries keep the AggregateError reachable through Unwrap.
func terminalError(err error) *classify.ClassifiedError {
	var ce *classify.ClassifiedError
	if errors.As(err, &ce) && ce == err {
		return ce
	}
	var agg *retry.AggregateError
	if errors.As(err, &agg) {
		kind := classify.KindOf(agg)
		info := classify.Describe(kind)
		return &classify.ClassifiedError{
			Kind:            kind,
			Status:          agg.StatusCode(),
			Retryable:       info.Retryable,
			Original:        agg,
			UserMessage:     info.UserMessage,
			SuggestedAction: info.SuggestedAction,
		}
	}
	return classify.Classify(err)
}

func (c *Client) recordContext(base, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra)+2)
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	if c.monitor.RequestID != "" {
		out["requestId"] = c.monitor.RequestID
	}
	return out
}

func jobContext(j *provider.Job) map[string]any {
	if j == nil {
		return nil
	}
	return map[string]any{"jobId": j.ID, "jobStatus": string(j.Status)}
}

// inputKeys lists input field names; values are never recorded.
func inputKeys(in map[string]any) []string {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
