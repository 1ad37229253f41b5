// Package safety asks the text engine whether URLs seen in the browser
// look like scams.
package safety

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"rephrase/llm"
	"rephrase/log"
	"rephrase/supervisor"
)

type Status int

const (
	Checking Status = iota
	Safe
	Scam
)

func (s Status) String() string {
	switch s {
	case Checking:
		return "checking"
	case Safe:
		return "safe"
	case Scam:
		return "scam"
	}
	return "unknown"
}

type Verdict struct {
	URL      string
	Bounds   supervisor.Bounds
	Status   Status
	Analysis string
}

const defaultAnalysis = "Checked by AI"

type Monitor struct {
	LLM    llm.Completer
	Report func(Verdict)
	Go     func(func())
}

// Handle is a supervisor.Handler for the URL monitor.
func (m *Monitor) Handle(ev supervisor.Event) {
	switch e := ev.(type) {
	case supervisor.URLObserved:
		if e.URL == "" || e.URL == "about:blank" {
			return
		}
		run := m.Go
		if run == nil {
			run = func(f func()) { go f() }
		}
		run(func() { m.check(e) })
	case supervisor.Exited:
		log.Watcher(supervisor.URLMonitor.String(), "exit", e.Err)
	}
}

func (m *Monitor) check(e supervisor.URLObserved) {
	m.report(Verdict{URL: e.URL, Bounds: e.Bounds, Status: Checking})
	v := m.Check(context.Background(), e.URL)
	v.Bounds = e.Bounds
	m.report(v)
}

func (m *Monitor) report(v Verdict) {
	if m.Report != nil {
		m.Report(v)
	}
}

// Check classifies url. Any engine or parse failure counts as safe.
func (m *Monitor) Check(ctx context.Context, url string) Verdict {
	prompt := fmt.Sprintf(`Analyze this URL for safety: %q. Is it likely a scam, phishing, or malicious site? `+
		`Reply with a JSON object ONLY: { "isSafe": boolean, "analysis": "short reason" }`, url)
	out, err := m.LLM.Complete(ctx, []llm.Message{llm.User(prompt)}, llm.Options{Temperature: 0.1})
	if err != nil {
		log.Warnf("safety check %s: %v", url, err)
		return Verdict{URL: url, Status: Safe}
	}
	safe, analysis, err := parseVerdict(out)
	if err != nil {
		log.Warnf("safety check %s: %v", url, err)
		return Verdict{URL: url, Status: Safe}
	}
	v := Verdict{URL: url, Status: Safe, Analysis: analysis}
	if !safe {
		v.Status = Scam
	}
	return v
}

func parseVerdict(out string) (bool, string, error) {
	if i, j := strings.Index(out, "{"), strings.LastIndex(out, "}"); i >= 0 && j > i {
		out = out[i : j+1]
	}
	var v struct {
		IsSafe   *bool  `json:"isSafe"`
		Analysis string `json:"analysis"`
	}
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		return true, "", fmt.Errorf("parse verdict: %w", err)
	}
	if v.Analysis == "" {
		v.Analysis = defaultAnalysis
	}
	return v.IsSafe == nil || *v.IsSafe, v.Analysis, nil
}
