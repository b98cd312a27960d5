package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/pkg/provider/llm"
)

// ClientFactory builds the LLM client for one credential of one provider.
type ClientFactory func(spec ProviderSpec, secret string) (llm.Provider, error)

// Response is the text of a successful request and where it came from.
type Response struct {
	Text            string
	ProviderID      string
	CredentialIndex int
}

// Router sends completion requests through the provider chain of a
// [ProviderPool], trying credentials in order and failing over on any error
// without delay or retry.
type Router struct {
	pool    *ProviderPool
	factory ClientFactory
	metrics *observe.Metrics

	mu      sync.Mutex
	clients map[credKey]llm.Provider
}

type credKey struct{ provider, index int }

// RouterOption configures a [Router].
type RouterOption func(*Router)

// WithMetrics overrides the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) RouterOption {
	return func(r *Router) { r.metrics = m }
}

// NewRouter creates a Router over pool. Clients are built lazily by factory
// and cached per credential.
func NewRouter(pool *ProviderPool, factory ClientFactory, opts ...RouterOption) *Router {
	r := &Router{
		pool:    pool,
		factory: factory,
		clients: make(map[credKey]llm.Provider),
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Pool returns the credential pool the router draws from.
func (r *Router) Pool() *ProviderPool { return r.pool }

// Request returns the first complete, non-empty reply produced by any live
// credential. Every failed attempt marks its credential failed for the rest
// of the epoch. When ctx is cancelled the walk stops and ctx.Err() is
// returned without blaming the credential in use.
func (r *Router) Request(ctx context.Context, req llm.CompletionRequest) (Response, error) {
	ctx, span := observe.StartSpan(ctx, "router.request")
	defer span.End()

	var attempts []error
	for pi, spec := range r.pool.specs {
		for ci := range spec.Keys {
			if err := ctx.Err(); err != nil {
				return Response{}, err
			}
			cred, epoch, ok := r.pool.acquire(pi, ci)
			if !ok {
				continue
			}

			text, err := r.attempt(ctx, pi, ci, spec, cred, req)
			if err == nil {
				span.SetAttributes(
					attribute.String("provider", spec.ID),
					attribute.Int("credential", ci),
					attribute.Int("failed_attempts", len(attempts)),
				)
				return Response{Text: text, ProviderID: spec.ID, CredentialIndex: ci}, nil
			}
			if ctx.Err() != nil {
				return Response{}, ctx.Err()
			}

			attempts = append(attempts, err)
			kind := failureKind(err)
			r.metrics.RecordProviderRequest(ctx, spec.ID, ci, "error")
			if r.pool.markFailed(pi, ci, epoch) {
				r.metrics.RecordProviderError(ctx, spec.ID, kind)
			}
			span.AddEvent("credential failed", trace.WithAttributes(
				attribute.String("provider", spec.ID),
				attribute.Int("credential", ci),
				attribute.String("kind", kind),
			))
			observe.Logger(ctx).Warn("provider credential failed, trying next",
				"provider", fmt.Sprintf("%s#%d", spec.ID, ci), "kind", kind, "err", err)
		}
	}

	r.metrics.RouterExhausted.Add(ctx, 1)
	exhausted := &ExhaustedError{Attempts: attempts}
	span.RecordError(exhausted)
	span.SetStatus(codes.Error, "exhausted")
	return Response{}, exhausted
}

// attempt performs one call and normalizes its failure into a
// [*TransientError] or [*MalformedResponseError].
func (r *Router) attempt(ctx context.Context, pi, ci int, spec ProviderSpec, cred Credential, req llm.CompletionRequest) (string, error) {
	client, err := r.client(pi, ci, spec, cred)
	if err != nil {
		return "", &TransientError{ProviderID: spec.ID, Credential: ci, Err: err}
	}

	req = applyDefaults(req, spec)
	callCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := client.Complete(callCtx, req)
	r.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())

	switch {
	case err != nil && errors.Is(err, llm.ErrEmptyCompletion):
		return "", &MalformedResponseError{ProviderID: spec.ID, Credential: ci, Err: err}
	case err != nil:
		te := &TransientError{ProviderID: spec.ID, Credential: ci, Err: err}
		var se *llm.StatusError
		if errors.As(err, &se) {
			te.Status = se.Status
			te.Rejected = !se.Retryable()
		}
		return "", te
	case resp == nil || strings.TrimSpace(resp.Content) == "":
		return "", &MalformedResponseError{ProviderID: spec.ID, Credential: ci, Err: llm.ErrEmptyCompletion}
	case resp.FinishReason == llm.FinishLength:
		return "", &MalformedResponseError{ProviderID: spec.ID, Credential: ci, Err: llm.ErrTruncatedCompletion}
	}

	r.metrics.RecordProviderRequest(ctx, spec.ID, ci, "ok")
	return strings.TrimSpace(resp.Content), nil
}

// failureKind labels a failed attempt for metrics and logs.
func failureKind(err error) string {
	var (
		malformed *MalformedResponseError
		te        *TransientError
	)
	switch {
	case errors.As(err, &malformed):
		return "malformed"
	case errors.As(err, &te) && te.Rejected:
		return "rejected"
	default:
		return "transient"
	}
}

func (r *Router) client(pi, ci int, spec ProviderSpec, cred Credential) (llm.Provider, error) {
	key := credKey{pi, ci}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[key]; ok {
		return c, nil
	}
	c, err := r.factory(spec, cred.Secret)
	if err != nil {
		return nil, fmt.Errorf("build client: %w", err)
	}
	r.clients[key] = c
	return c, nil
}

func applyDefaults(req llm.CompletionRequest, spec ProviderSpec) llm.CompletionRequest {
	if req.Temperature == 0 {
		req.Temperature = spec.Temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = spec.MaxTokens
	}
	if len(req.Stop) == 0 && len(spec.Stop) > 0 {
		req.Stop = spec.Stop
	}
	return req
}
