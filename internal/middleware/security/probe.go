package security

import (
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
)

const maxURLLength = 2048

var (
	probePatterns = []string{
		"../", "..\\", ".env", ".git", ".ssh", "wp-admin", "phpmyadmin",
		"admin.php", "config.php", "etc/passwd", "cmd.exe",
		"<script", "javascript:", "eval(", "union select", "' or '1'='1",
	}
	scannerAgents = []string{"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab"}
	probeMethods  = map[string]bool{"TRACE": true, "TRACK": true, "DEBUG": true, "CONNECT": true}
)

// Detector recognises requests that look like scanning or injection
// attempts. It only classifies; callers decide what to do.
type Detector struct {
	flagged atomic.Int64
}

func NewDetector() *Detector {
	return &Detector{}
}

// Inspect returns a short reason when r looks like a probe, or "".
func (d *Detector) Inspect(r *http.Request) string {
	reason := classify(r)
	if reason != "" {
		d.flagged.Add(1)
	}
	return reason
}

func classify(r *http.Request) string {
	if probeMethods[r.Method] {
		return "method"
	}
	if len(r.URL.String()) > maxURLLength {
		return "url_length"
	}
	if containsAny(strings.ToLower(r.URL.Path), probePatterns) {
		return "path"
	}
	query := r.URL.RawQuery
	if unescaped, err := url.QueryUnescape(query); err == nil {
		query = unescaped
	}
	if containsAny(strings.ToLower(query), probePatterns) {
		return "query"
	}
	if containsAny(strings.ToLower(r.UserAgent()), scannerAgents) {
		return "user_agent"
	}
	return ""
}

// Flagged is the number of requests Inspect has classified as probes.
func (d *Detector) Flagged() int64 {
	return d.flagged.Load()
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
