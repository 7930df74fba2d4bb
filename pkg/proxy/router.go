package proxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/switchboard/pkg/circuit"
	"mercator-hq/switchboard/pkg/config"
	"mercator-hq/switchboard/pkg/failover"
	"mercator-hq/switchboard/pkg/providers"
	"mercator-hq/switchboard/pkg/telemetry/logging"
	"mercator-hq/switchboard/pkg/telemetry/metrics"
	"mercator-hq/switchboard/pkg/telemetry/tracing"
	"mercator-hq/switchboard/pkg/usage"
)

// Response headers added by the router.
const (
	// ProviderHeader names the provider that produced the response.
	ProviderHeader = "X-Switchboard-Provider"

	// AttemptsHeader is the number of upstream attempts the response took.
	AttemptsHeader = "X-Switchboard-Attempts"
)

// statusClientClosed is recorded when the CLI disconnected before a
// response was written.
const statusClientClosed = 499

// errorKindClientClosed marks usage entries of abandoned attempts.
const errorKindClientClosed = "client_closed"

// UsageSink receives one entry per upstream attempt. *usage.Logger
// implements it.
type UsageSink interface {
	Log(e *usage.Entry) error
}

// Config configures a Router.
type Config struct {
	// MaxAttempts caps upstream attempts per request, the first included.
	// Default: 3
	MaxAttempts int

	// RequestTimeout is the deadline of one attempt, streaming included.
	// Default: 10m
	RequestTimeout time.Duration

	// MaxBodySize limits inbound request bodies.
	// Default: MaxRequestBodySize
	MaxBodySize int64

	// MaxErrorBodySize limits how much of a failed response is kept for
	// relaying to the CLI.
	// Default: 1MB
	MaxErrorBodySize int64
}

// ConfigFrom extracts the router settings from the proxy configuration.
func ConfigFrom(cfg config.ProxyConfig) Config {
	return Config{
		MaxAttempts:    cfg.MaxAttempts,
		RequestTimeout: cfg.RequestTimeout,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Minute
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = MaxRequestBodySize
	}
	if c.MaxErrorBodySize <= 0 {
		c.MaxErrorBodySize = 1 << 20
	}
	return c
}

// Option configures optional Router collaborators.
type Option func(*Router)

// WithClient sets the upstream HTTP client.
func WithClient(c *http.Client) Option {
	return func(r *Router) { r.client = c }
}

// WithUsage sets the sink that receives per-attempt usage entries.
func WithUsage(u UsageSink) Option {
	return func(r *Router) { r.usage = u }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(r *Router) { r.metrics = m }
}

// WithTracer sets the tracer used for request and attempt spans.
func WithTracer(t *tracing.Tracer) Option {
	return func(r *Router) { r.tracer = t }
}

// WithLogger sets the router's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// Router forwards CLI requests to the active provider of their app and
// fails over to the next eligible provider when an attempt fails before
// anything was written to the CLI.
type Router struct {
	sw      *failover.Switch
	client  *http.Client
	usage   UsageSink
	metrics *metrics.Collector
	tracer  *tracing.Tracer
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// NewRouter creates a router that resolves providers through sw.
func NewRouter(sw *failover.Switch, cfg Config, opts ...Option) *Router {
	r := &Router{
		sw:     sw,
		cfg:    cfg.withDefaults(),
		logger: slog.Default().With("component", "proxy"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.client == nil {
		r.client = NewClient(config.Default().Proxy)
	}
	return r
}

type attemptResult int

const (
	// attemptFailed means nothing was written to the CLI; the next provider may be tried.
	attemptFailed attemptResult = iota

	// attemptDone means the response was committed to the CLI.
	attemptDone

	// attemptAbandoned means the CLI went away.
	attemptAbandoned
)

// ServeHTTP implements http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := rt.now()

	app, path, err := DetectApp(r)
	if err != nil {
		_ = WriteErrorResponse(w, HandleError(err))
		return
	}
	body, err := ReadBody(r, rt.cfg.MaxBodySize)
	if err != nil {
		_ = WriteErrorResponse(w, HandleError(err))
		return
	}

	meta := ExtractRequestMetadata(r, app, path, body, start)
	ctx := logging.WithApp(r.Context(), app.String())
	ctx = logging.WithModel(ctx, meta.Model)
	ctx, span := rt.tracer.Start(ctx, "proxy."+app.String())
	defer span.End()
	tracing.SetRequestAttributes(span, app.String(), meta.RequestID, meta.Model)

	status, provider := rt.forward(ctx, w, r, meta, body)

	span.SetAttributes(attribute.Int(tracing.AttrStatusCode, status))
	if provider == "" {
		provider = "none"
	}
	rt.metrics.RecordRequest(app.String(), provider, status, rt.now().Sub(start))
}

// forward runs the attempt loop and returns the status written to the CLI
// and the provider that produced it.
func (rt *Router) forward(ctx context.Context, w http.ResponseWriter, in *http.Request, meta *RequestMetadata, body []byte) (int, string) {
	app := meta.App
	var (
		attempted []string
		lastErr   error
		lastHTTP  *UpstreamHTTPError
	)

	for n := 1; n <= rt.cfg.MaxAttempts; n++ {
		p, err := rt.sw.ResolveNext(app, rt.now(), attempted)
		if err != nil {
			if n == 1 {
				rt.metrics.RecordNoEligible(app.String())
				rt.logger.WarnContext(ctx, "no eligible provider", append(meta.LogAttrs(), "error", err)...)
				resp := HandleError(err)
				_ = WriteErrorResponse(w, resp)
				return resp.Error.HTTPStatusCode(), ""
			}
			break
		}
		if n > 1 {
			rt.metrics.RecordFailover(app.String())
			rt.logger.WarnContext(ctx, "failing over",
				append(meta.LogAttrs(), "provider", p.ID, "attempt", n, "previous_error", lastErr)...)
		}
		attempted = append(attempted, p.ID)

		status, result, err := rt.attempt(ctx, w, in, meta, body, p, n)
		if result != attemptFailed {
			return status, p.ID
		}
		lastErr = err
		var httpErr *UpstreamHTTPError
		if errors.As(err, &httpErr) {
			lastHTTP = httpErr
		}
	}

	exhausted := &AttemptsExhaustedError{App: app, Attempted: attempted, LastError: lastErr}
	rt.logger.ErrorContext(ctx, "all attempts failed", append(meta.LogAttrs(), "error", exhausted)...)

	if lastHTTP != nil {
		copyResponseHeaders(w.Header(), lastHTTP.Header)
		w.Header().Set(ProviderHeader, lastHTTP.ProviderID)
		w.Header().Set(AttemptsHeader, strconv.Itoa(len(attempted)))
		w.WriteHeader(lastHTTP.StatusCode)
		_, _ = w.Write(lastHTTP.Body)
		return lastHTTP.StatusCode, lastHTTP.ProviderID
	}

	resp := HandleError(exhausted)
	w.Header().Set(AttemptsHeader, strconv.Itoa(len(attempted)))
	_ = WriteErrorResponse(w, resp)
	return resp.Error.HTTPStatusCode(), attempted[len(attempted)-1]
}

// attempt sends the request to p. Failures before the response is
// committed are reported and returned for the caller to retry elsewhere.
func (rt *Router) attempt(ctx context.Context, w http.ResponseWriter, in *http.Request, meta *RequestMetadata, body []byte, p providers.Provider, n int) (int, attemptResult, error) {
	ctx = logging.WithProvider(ctx, p.ID)
	ctx, span := rt.tracer.Start(ctx, "proxy.attempt", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	actx, cancel := context.WithTimeout(ctx, rt.cfg.RequestTimeout)
	defer cancel()

	entry := &usage.Entry{
		RequestID:  meta.RequestID,
		App:        meta.App,
		ProviderID: p.ID,
		Model:      p.MapModel(meta.Model),
		Method:     meta.Method,
		Path:       meta.Path,
		Attempt:    n,
		Streamed:   meta.Stream,
	}
	start := rt.now()

	req, err := NewUpstreamRequest(actx, in, p, meta.Path, body)
	if err != nil {
		// Nothing was sent, so there is no outcome to report.
		rt.sw.Abandon(meta.App, p.ID)
		tracing.SetError(span, err)
		return 0, attemptFailed, err
	}

	resp, err := rt.client.Do(req)
	if err != nil {
		latency := rt.now().Sub(start)
		if ctx.Err() != nil {
			rt.abandon(ctx, entry, latency)
			return statusClientClosed, attemptAbandoned, err
		}
		kind := circuit.ClassifyError(err)
		terr := &UpstreamTransportError{ProviderID: p.ID, Kind: kind, Err: err}
		rt.finish(ctx, span, entry, circuit.Failed(kind, 0, latency, terr))
		return 0, attemptFailed, terr
	}
	defer resp.Body.Close()

	if kind, failed := circuit.ClassifyStatus(resp.StatusCode); failed {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, rt.cfg.MaxErrorBodySize))
		herr := &UpstreamHTTPError{
			ProviderID: p.ID,
			StatusCode: resp.StatusCode,
			Header:     resp.Header.Clone(),
			Body:       errBody,
		}
		entry.Tokens = usage.ParseTokens(errBody)
		rt.finish(ctx, span, entry, circuit.Failed(kind, resp.StatusCode, rt.now().Sub(start), herr))
		return resp.StatusCode, attemptFailed, herr
	}

	// From here on the response belongs to the CLI and cannot be retried.
	copyResponseHeaders(w.Header(), resp.Header)
	if meta.RequestID != "" {
		w.Header().Set(RequestIDHeader, meta.RequestID)
	}
	w.Header().Set(ProviderHeader, p.ID)
	w.Header().Set(AttemptsHeader, strconv.Itoa(n))
	w.WriteHeader(resp.StatusCode)
	entry.Streamed = meta.Stream || IsEventStream(resp.Header)

	tokens := usage.NewTokenCollector(resp.Header.Get("Content-Type"))
	_, err = relay(w, resp.Body, tokens)
	latency := rt.now().Sub(start)
	entry.Tokens = tokens.Tokens()

	if err != nil {
		var serr *streamError
		if ctx.Err() != nil || (errors.As(err, &serr) && !serr.upstream) {
			entry.StatusCode = resp.StatusCode
			rt.abandon(ctx, entry, latency)
			return resp.StatusCode, attemptAbandoned, err
		}
		kind := circuit.ClassifyError(err)
		rt.finish(ctx, span, entry, circuit.Failed(kind, resp.StatusCode, latency,
			&UpstreamTransportError{ProviderID: p.ID, Kind: kind, Err: err}))
		return resp.StatusCode, attemptDone, err
	}

	rt.finish(ctx, span, entry, circuit.Succeeded(resp.StatusCode, latency))
	return resp.StatusCode, attemptDone, nil
}

// finish reports an attempt's outcome to the switch and records it.
func (rt *Router) finish(ctx context.Context, span trace.Span, entry *usage.Entry, o circuit.Outcome) {
	app := entry.App.String()
	rt.sw.ReportOutcome(entry.App, entry.ProviderID, o)
	rt.metrics.RecordAttempt(app, entry.ProviderID, o)

	entry.StatusCode = o.StatusCode
	entry.LatencyMS = o.Latency.Milliseconds()
	entry.Success = o.Success

	tracing.SetAttemptAttributes(span, entry.ProviderID, entry.Attempt, o.StatusCode)
	span.SetAttributes(attribute.Bool(tracing.AttrStreamed, entry.Streamed))
	if t := entry.Tokens; t != nil {
		rt.metrics.RecordTokens(app, entry.ProviderID, entry.Model, t.InputTokens, t.OutputTokens)
		tracing.SetTokenAttributes(span, t.InputTokens, t.OutputTokens)
	}

	log := logging.FromContext(ctx, rt.logger)
	if o.Success {
		log.DebugContext(ctx, "attempt succeeded",
			"attempt", entry.Attempt, "status", o.StatusCode, "latency_ms", entry.LatencyMS)
	} else {
		entry.ErrorKind = o.Kind.String()
		span.SetAttributes(attribute.String(tracing.AttrFailure, entry.ErrorKind))
		tracing.SetError(span, o.Err)
		log.WarnContext(ctx, "attempt failed",
			"attempt", entry.Attempt, "kind", entry.ErrorKind, "status", o.StatusCode,
			"latency_ms", entry.LatencyMS, "error", o.Err)
	}
	rt.record(ctx, entry)
}

// abandon releases the provider without an outcome: the CLI left, which
// says nothing about the provider's health.
func (rt *Router) abandon(ctx context.Context, entry *usage.Entry, latency time.Duration) {
	rt.sw.Abandon(entry.App, entry.ProviderID)
	entry.LatencyMS = latency.Milliseconds()
	entry.ErrorKind = errorKindClientClosed
	logging.FromContext(ctx, rt.logger).InfoContext(ctx, "client disconnected", "attempt", entry.Attempt)
	rt.record(ctx, entry)
}

func (rt *Router) record(ctx context.Context, entry *usage.Entry) {
	if rt.usage == nil {
		return
	}
	if err := rt.usage.Log(entry); err != nil {
		rt.logger.DebugContext(ctx, "usage entry not recorded", "error", err)
	}
}
