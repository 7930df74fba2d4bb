package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"mercator-hq/switchboard/pkg/config"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTracer(t *testing.T) (*Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tr, err := NewWithExporter(&config.TracingConfig{Enabled: true, SampleRatio: 1}, exp)
	if err != nil {
		t.Fatalf("NewWithExporter() error = %v", err)
	}
	t.Cleanup(func() { tr.Shutdown(context.Background()) })
	return tr, exp
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *config.TracingConfig
		enabled bool
		wantErr bool
	}{
		{name: "nil config", wantErr: true},
		{name: "disabled", config: &config.TracingConfig{}, enabled: false},
		{name: "otlp lazily connects", config: &config.TracingConfig{Enabled: true, Exporter: "otlp", Endpoint: "127.0.0.1:1", Insecure: true, SampleRatio: 1}, enabled: true},
		{name: "unknown exporter", config: &config.TracingConfig{Enabled: true, Exporter: "zipkin", SampleRatio: 1}, wantErr: true},
		{name: "bad ratio", config: &config.TracingConfig{Enabled: true, SampleRatio: 2}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer tr.Shutdown(context.Background())
			if tr.Enabled() != tt.enabled {
				t.Errorf("Enabled() = %v, want %v", tr.Enabled(), tt.enabled)
			}
		})
	}
}

func TestTracer_AttemptSpans(t *testing.T) {
	tr, exp := newTestTracer(t)

	ctx, req := tr.Start(context.Background(), "proxy.request")
	SetRequestAttributes(req, "claude", "req-1", "opus")
	for i, provider := range []string{"A", "B"} {
		_, span := tr.Start(ctx, "proxy.attempt")
		SetAttemptAttributes(span, provider, i+1, []int{503, 200}[i])
		if i == 0 {
			SetError(span, errors.New("upstream returned 503"))
		}
		span.End()
	}
	req.End()

	if err := tr.ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush() error = %v", err)
	}
	spans := exp.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("exported %d spans, want 3", len(spans))
	}

	parent := spans[2]
	for _, s := range spans[:2] {
		if s.Parent.SpanID() != parent.SpanContext.SpanID() {
			t.Errorf("attempt span %s not a child of the request span", s.Name)
		}
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("first attempt status = %v, want error", spans[0].Status.Code)
	}
	if !hasAttr(spans[1].Attributes, attribute.String(AttrProvider, "B")) {
		t.Errorf("second attempt attributes = %v", spans[1].Attributes)
	}
	if TraceID(ctx) != parent.SpanContext.TraceID().String() {
		t.Error("TraceID() does not match the request span")
	}
}

func TestNoopTracer(t *testing.T) {
	var nilTracer *Tracer
	_, span := nilTracer.Start(context.Background(), "x")
	span.End()
	if nilTracer.Enabled() {
		t.Error("nil tracer reports enabled")
	}

	ctx, span := Noop().Start(context.Background(), "x")
	span.End()
	if TraceID(ctx) != "" {
		t.Error("noop span has a trace id")
	}
}

func TestHTTPMiddleware(t *testing.T) {
	tr, exp := newTestTracer(t)

	var inner string
	h := HTTPMiddleware(tr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = TraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/claude/v1/messages", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if inner != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace id in handler = %q, want the propagated one", inner)
	}
	if rec.Header().Get("X-Trace-ID") != inner {
		t.Errorf("X-Trace-ID = %q", rec.Header().Get("X-Trace-ID"))
	}
	tr.ForceFlush(context.Background())
	if spans := exp.GetSpans(); len(spans) != 1 || spans[0].Name != "POST /claude/v1/messages" {
		t.Errorf("spans = %v", spans)
	}
}

func TestCreateSampler(t *testing.T) {
	for _, ratio := range []float64{0, 0.5, 1} {
		if _, err := createSampler(ratio); err != nil {
			t.Errorf("createSampler(%v) error = %v", ratio, err)
		}
	}
	if _, err := createSampler(-0.1); err == nil {
		t.Error("createSampler(-0.1) should fail")
	}
}

func hasAttr(attrs []attribute.KeyValue, want attribute.KeyValue) bool {
	for _, a := range attrs {
		if a == want {
			return true
		}
	}
	return false
}
