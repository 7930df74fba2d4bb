package main

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"mercator-hq/switchboard/pkg/circuit"
	"mercator-hq/switchboard/pkg/health"
	"mercator-hq/switchboard/pkg/server"
	"mercator-hq/switchboard/pkg/takeover"
	"mercator-hq/switchboard/pkg/usage"
)

// Wire shapes of the control API list endpoints. The JSON output format
// prints them unchanged.

type providersView struct {
	Providers []health.ProviderHealth `json:"providers"`
}

func (v providersView) Header() []string {
	return []string{"APP", "ID", "NAME", "PRIORITY", "HEALTH", "BREAKER", "FAILURES", "LAST CHECK"}
}

func (v providersView) Rows() [][]string {
	rows := make([][]string, 0, len(v.Providers))
	for _, p := range v.Providers {
		last := "-"
		if o := p.LastObservation; o != nil {
			last = o.At.Format(time.RFC3339)
			if !o.Success && o.Kind != "" {
				last += " (" + o.Kind + ")"
			}
		}
		rows = append(rows, []string{
			p.App.String(),
			p.ProviderID,
			p.Name,
			strconv.Itoa(p.Priority),
			p.Badge.String(),
			p.Breaker.Status.String(),
			strconv.Itoa(p.Breaker.ConsecutiveFailures),
			last,
		})
	}
	return rows
}

type takeoverView struct {
	Takeover []takeover.Status `json:"takeover"`
}

func (v takeoverView) Header() []string {
	return []string{"APP", "ENABLED", "PATH", "PROXY URL", "SINCE"}
}

func (v takeoverView) Rows() [][]string {
	rows := make([][]string, 0, len(v.Takeover))
	for _, st := range v.Takeover {
		rows = append(rows, takeoverRow(st))
	}
	return rows
}

func takeoverRow(st takeover.Status) []string {
	since := "-"
	if !st.Since.IsZero() {
		since = st.Since.Format(time.RFC3339)
	}
	proxyURL := st.ProxyURL
	if proxyURL == "" {
		proxyURL = "-"
	}
	return []string{st.App.String(), strconv.FormatBool(st.Enabled), st.Path, proxyURL, since}
}

type usageView server.UsagePage

func (v usageView) Header() []string {
	return []string{"TIME", "APP", "PROVIDER", "MODEL", "STATUS", "LATENCY", "INPUT", "OUTPUT", "ATTEMPT"}
}

func (v usageView) Rows() [][]string {
	rows := make([][]string, 0, len(v.Entries))
	for _, e := range v.Entries {
		in, out := "-", "-"
		if e.Tokens != nil {
			in = strconv.FormatInt(e.Tokens.InputTokens, 10)
			out = strconv.FormatInt(e.Tokens.OutputTokens, 10)
		}
		status := strconv.Itoa(e.StatusCode)
		if e.ErrorKind != "" {
			status += " " + e.ErrorKind
		}
		model := e.Model
		if model == "" {
			model = "-"
		}
		rows = append(rows, []string{
			e.Timestamp.Local().Format(time.DateTime),
			e.App.String(),
			e.ProviderID,
			model,
			status,
			(time.Duration(e.LatencyMS) * time.Millisecond).String(),
			in,
			out,
			strconv.Itoa(e.Attempt),
		})
	}
	return rows
}

type statsView struct {
	Stats []usage.ProviderStats `json:"stats"`
}

func (v statsView) Header() []string {
	return []string{"APP", "PROVIDER", "REQUESTS", "SUCCESS", "AVG LATENCY", "INPUT", "OUTPUT", "LAST REQUEST"}
}

func (v statsView) Rows() [][]string {
	rows := make([][]string, 0, len(v.Stats))
	for _, s := range v.Stats {
		rows = append(rows, []string{
			s.App,
			s.ProviderID,
			strconv.FormatInt(s.Requests, 10),
			strconv.FormatFloat(s.SuccessRate*100, 'f', 1, 64) + "%",
			strconv.FormatFloat(s.AvgLatencyMS, 'f', 0, 64) + "ms",
			strconv.FormatInt(s.InputTokens, 10),
			strconv.FormatInt(s.OutputTokens, 10),
			s.LastRequestAt.Local().Format(time.DateTime),
		})
	}
	return rows
}

type statusView server.Status

func (v statusView) Header() []string {
	return []string{"APP", "ACTIVE", "PROVIDERS", "OPEN", "TAKEOVER"}
}

func (v statusView) Rows() [][]string {
	apps := make([]string, 0, len(v.Apps))
	byName := make(map[string]server.AppStatus, len(v.Apps))
	for app, st := range v.Apps {
		apps = append(apps, app.String())
		byName[app.String()] = st
	}
	sort.Strings(apps)

	rows := make([][]string, 0, len(apps))
	for _, name := range apps {
		st := byName[name]
		var open []string
		for _, b := range st.Breakers {
			if b.Status != circuit.Closed {
				open = append(open, b.ProviderID+"("+b.Status.String()+")")
			}
		}
		active := st.ActiveProvider
		if active == "" {
			active = "-"
		}
		openCol := "-"
		if len(open) > 0 {
			openCol = strings.Join(open, ",")
		}
		rows = append(rows, []string{
			name,
			active,
			strings.Join(st.Providers, ","),
			openCol,
			strconv.FormatBool(st.Takeover.Enabled),
		})
	}
	return rows
}
