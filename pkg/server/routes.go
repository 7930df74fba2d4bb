package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"mercator-hq/switchboard/pkg/config"
	"mercator-hq/switchboard/pkg/health"
	"mercator-hq/switchboard/pkg/providers"
	"mercator-hq/switchboard/pkg/proxy"
	"mercator-hq/switchboard/pkg/proxy/middleware"
	"mercator-hq/switchboard/pkg/proxy/types"
	"mercator-hq/switchboard/pkg/takeover"
	telhealth "mercator-hq/switchboard/pkg/telemetry/health"
	"mercator-hq/switchboard/pkg/telemetry/tracing"
	"mercator-hq/switchboard/pkg/usage"
)

// ControlPrefix is the path prefix of the control API. It never collides
// with proxied traffic, which is routed by app prefix or API path.
const ControlPrefix = "/_switchboard"

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+ControlPrefix+"/health", s.checker.LivenessHandler())
	mux.HandleFunc("GET "+ControlPrefix+"/ready", s.checker.ReadinessHandler())
	mux.HandleFunc("GET "+ControlPrefix+"/version",
		telhealth.VersionHandler(s.opts.Version, s.opts.Commit, s.opts.BuildTime))
	mux.HandleFunc("GET "+ControlPrefix+"/status", s.handleStatus)

	mux.HandleFunc("GET "+ControlPrefix+"/providers", s.handleProviders)
	mux.HandleFunc("POST "+ControlPrefix+"/providers/{id}/check", s.handleCheck)
	mux.HandleFunc("POST "+ControlPrefix+"/providers/{id}/enable", s.handleEnable)

	mux.HandleFunc("GET "+ControlPrefix+"/takeover", s.handleTakeoverStatus)
	mux.HandleFunc("POST "+ControlPrefix+"/takeover/{app}", s.handleTakeoverEnable)
	mux.HandleFunc("DELETE "+ControlPrefix+"/takeover/{app}", s.handleTakeoverDisable)

	mux.HandleFunc("GET "+ControlPrefix+"/usage", s.handleUsage)
	mux.HandleFunc("GET "+ControlPrefix+"/usage/stats", s.handleUsageStats)
	mux.HandleFunc("POST "+ControlPrefix+"/usage/prune", s.handlePrune)

	mux.HandleFunc("POST "+ControlPrefix+"/reload", s.handleReload)
	mux.HandleFunc(ControlPrefix+"/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, types.NewNotFoundError("unknown control endpoint: "+r.Method+" "+r.URL.Path, ""))
	})

	if config.BoolValue(s.cfg.Telemetry.Metrics.Enabled, true) {
		mux.Handle("GET "+s.cfg.Telemetry.Metrics.Path, s.metrics.Handler())
	}

	mux.Handle("/", s.router)

	return middleware.Chain(mux,
		middleware.RecoveryMiddleware,
		middleware.RequestIDMiddleware,
		middleware.LoggingMiddleware(s.logger),
		tracing.HTTPMiddleware(s.tracer),
	)
}

func writeError(w http.ResponseWriter, resp *types.ErrorResponse) {
	_ = proxy.WriteErrorResponse(w, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	_ = proxy.WriteJSONResponse(w, status, v)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.Status(r.Context())
	if err != nil {
		s.logger.Warn("status incomplete", "error", err)
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	all := s.tracker.All()
	if name := r.URL.Query().Get("app"); name != "" {
		app, err := providers.ParseApp(name)
		if err != nil {
			writeError(w, proxy.HandleError(err))
			return
		}
		filtered := all[:0:0]
		for _, h := range all {
			if h.App == app {
				filtered = append(filtered, h)
			}
		}
		all = filtered
	}
	if all == nil {
		all = []health.ProviderHealth{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": all})
}

// providerApp resolves the app a provider id belongs to. The app query
// parameter is required only when the id is configured for several apps.
func (s *Server) providerApp(r *http.Request, id string) (providers.App, *types.ErrorResponse) {
	if name := r.URL.Query().Get("app"); name != "" {
		app, err := providers.ParseApp(name)
		if err != nil {
			return 0, proxy.HandleError(err)
		}
		if _, err := s.sw.Registry().Lookup(app, id); err != nil {
			return 0, proxy.HandleError(err)
		}
		return app, nil
	}

	var found []providers.App
	for _, app := range providers.Apps() {
		if _, ok := s.sw.Registry().Snapshot(app).Get(id); ok {
			found = append(found, app)
		}
	}
	switch len(found) {
	case 0:
		return 0, types.NewNotFoundError(fmt.Sprintf("provider %q not found", id), types.CodeProviderNotFound)
	case 1:
		return found[0], nil
	default:
		return 0, types.NewInvalidRequestError(
			fmt.Sprintf("provider %q is configured for several apps; pass ?app=", id),
			"app", types.CodeInvalidValue)
	}
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	app, errResp := s.providerApp(r, id)
	if errResp != nil {
		writeError(w, errResp)
		return
	}

	res, err := s.tracker.CheckNow(r.Context(), app, id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, health.ErrProbeRateLimited):
		writeError(w, types.NewErrorResponse(
			fmt.Sprintf("provider %q was probed less than %s ago", id, s.cfg.Health.ProbeMinInterval),
			types.ErrorTypeRateLimitExceeded, "", types.CodeProbeRateLimited))
	default:
		writeError(w, proxy.HandleError(err))
	}
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	app, errResp := s.providerApp(r, id)
	if errResp != nil {
		writeError(w, errResp)
		return
	}
	if err := s.sw.Enable(app, id); err != nil {
		writeError(w, proxy.HandleError(err))
		return
	}
	st := s.sw.Breaker(app).Snapshot(id)
	s.metrics.RecordBreakerState(app.String(), id, st.Status)
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) takeoverApp(w http.ResponseWriter, r *http.Request) (providers.App, bool) {
	app, err := providers.ParseApp(r.PathValue("app"))
	if err != nil {
		writeError(w, proxy.HandleError(err))
		return 0, false
	}
	return app, true
}

func (s *Server) handleTakeoverStatus(w http.ResponseWriter, r *http.Request) {
	all, err := s.tk.StatusAll(r.Context())
	if err != nil {
		writeError(w, takeoverError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"takeover": all})
}

func (s *Server) handleTakeoverEnable(w http.ResponseWriter, r *http.Request) {
	app, ok := s.takeoverApp(w, r)
	if !ok {
		return
	}
	if err := s.tk.Enable(r.Context(), app); err != nil {
		writeError(w, takeoverError(err))
		return
	}
	st, err := s.tk.Status(r.Context(), app)
	if err != nil {
		writeError(w, takeoverError(err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// TakeoverResult is the body of a successful takeover disable. Warning is
// set when the CLI config had been edited by hand.
type TakeoverResult struct {
	takeover.Status
	Warning string `json:"warning,omitempty"`
}

func (s *Server) handleTakeoverDisable(w http.ResponseWriter, r *http.Request) {
	app, ok := s.takeoverApp(w, r)
	if !ok {
		return
	}

	var res TakeoverResult
	err := s.tk.Disable(r.Context(), app)
	var warn *takeover.ConflictWarning
	switch {
	case err == nil:
	case errors.As(err, &warn):
		res.Warning = warn.Error()
	default:
		writeError(w, takeoverError(err))
		return
	}

	st, err := s.tk.Status(r.Context(), app)
	if err != nil {
		writeError(w, takeoverError(err))
		return
	}
	res.Status = st
	writeJSON(w, http.StatusOK, res)
}

func takeoverError(err error) *types.ErrorResponse {
	switch {
	case errors.Is(err, takeover.ErrTakeoverConflict):
		return types.NewConflictError(err.Error(), types.CodeTakeoverConflict)
	case errors.Is(err, takeover.ErrNotEnabled):
		return types.NewConflictError(err.Error(), types.CodeTakeoverNotEnabled)
	case errors.Is(err, takeover.ErrConfigCorruption):
		return types.NewUnprocessableError(err.Error(), types.CodeConfigCorruption)
	case errors.Is(err, takeover.ErrProxyNotListening):
		return types.NewServiceUnavailableError(err.Error(), "")
	default:
		return types.NewServerError(err.Error())
	}
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	q, err := ParseUsageQuery(r, time.Now())
	if err != nil {
		writeError(w, proxy.HandleError(err))
		return
	}
	entries, err := s.usageStore.Query(r.Context(), q)
	if err != nil {
		writeError(w, types.NewServerError(err.Error()))
		return
	}
	total, err := s.usageStore.Count(r.Context(), q)
	if err != nil {
		writeError(w, types.NewServerError(err.Error()))
		return
	}
	if entries == nil {
		entries = []*usage.Entry{}
	}
	writeJSON(w, http.StatusOK, UsagePage{Entries: entries, Total: total})
}

// UsagePage is one page of request logs.
type UsagePage struct {
	Entries []*usage.Entry `json:"entries"`
	Total   int64          `json:"total"`
}

func (s *Server) handleUsageStats(w http.ResponseWriter, r *http.Request) {
	q, err := ParseUsageQuery(r, time.Now())
	if err != nil {
		writeError(w, proxy.HandleError(err))
		return
	}
	stats, err := s.usageStore.Stats(r.Context(), q)
	if err != nil {
		writeError(w, types.NewServerError(err.Error()))
		return
	}
	if stats == nil {
		stats = []usage.ProviderStats{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	res, err := s.pruner.Prune(r.Context())
	if err != nil {
		writeError(w, types.NewServerError(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.reloadFromFile()
	if err != nil {
		writeError(w, types.NewUnprocessableError(err.Error(), types.CodeInvalidValue))
		return
	}
	out := make(map[providers.App][]string, providers.NumApps)
	for _, app := range providers.Apps() {
		out[app] = s.sw.Registry().Snapshot(app).IDs()
	}
	s.logger.Info("providers reloaded", "path", s.opts.ConfigPath, "takeover_apps", len(cfg.TakeoverApps()))
	writeJSON(w, http.StatusOK, map[string]any{"providers": out})
}

// ParseUsageQuery builds a usage query from request parameters: app,
// provider, since and until (RFC 3339 or a duration back from now such as
// "24h"), success, limit and offset.
func ParseUsageQuery(r *http.Request, now time.Time) (*usage.Query, error) {
	return ParseUsageValues(r.URL.Query(), now)
}

// ParseUsageValues is ParseUsageQuery over already decoded parameters.
func ParseUsageValues(v url.Values, now time.Time) (*usage.Query, error) {
	q := &usage.Query{ProviderID: v.Get("provider")}

	if name := v.Get("app"); name != "" {
		app, err := providers.ParseApp(name)
		if err != nil {
			return nil, err
		}
		q.App = app.String()
	}

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"since", &q.Since}, {"until", &q.Until}} {
		raw := v.Get(p.name)
		if raw == "" {
			continue
		}
		t, err := parseTime(raw, now)
		if err != nil {
			return nil, &proxy.RequestError{Message: err.Error(), Code: types.CodeInvalidValue, Param: p.name}
		}
		*p.dst = &t
	}

	if raw := v.Get("success"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, &proxy.RequestError{Message: "success must be true or false", Code: types.CodeInvalidValue, Param: "success"}
		}
		q.Success = &b
	}

	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &q.Limit}, {"offset", &q.Offset}} {
		raw := v.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, &proxy.RequestError{Message: p.name + " must be a non-negative integer", Code: types.CodeInvalidValue, Param: p.name}
		}
		*p.dst = n
	}
	return q, nil
}

func parseTime(raw string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339 or a duration such as 24h", raw)
	}
	return now.Add(-d), nil
}
