package http

import (
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
)

// SecurityStats counts rejected writes and flagged requests since start.
// Flags holds one counter per screening rule that fired.
type SecurityStats struct {
	RateLimitHits      int64            `json:"rate_limit_hits"`
	SuspiciousRequests int64            `json:"suspicious_requests"`
	Flags              map[string]int64 `json:"flags,omitempty"`
}

type securityMetrics struct {
	mu    sync.Mutex
	stats SecurityStats
}

func (m *securityMetrics) rateLimited() {
	m.mu.Lock()
	m.stats.RateLimitHits++
	m.mu.Unlock()
}

func (m *securityMetrics) flagged(reasons []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.SuspiciousRequests++
	if m.stats.Flags == nil {
		m.stats.Flags = make(map[string]int64)
	}
	for _, r := range reasons {
		m.stats.Flags[r]++
	}
}

func (m *securityMetrics) snapshot() SecurityStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.stats
	if m.stats.Flags != nil {
		out.Flags = make(map[string]int64, len(m.stats.Flags))
		for k, v := range m.stats.Flags {
			out.Flags[k] = v
		}
	}
	return out
}

// Private and loopback ranges; only peers here may set forwarding headers.
var trustedProxies = mustParseCIDRs("127.0.0.0/8", "::1/128", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16")

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic("trusted proxy CIDR " + c + ": " + err.Error())
		}
		out = append(out, n)
	}
	return out
}

func isTrustedProxy(ip net.IP) bool {
	return slices.ContainsFunc(trustedProxies, func(n *net.IPNet) bool { return n.Contains(ip) })
}

// clientIP identifies the client a write is charged to. Behind trusted
// proxies it is the right-most X-Forwarded-For hop that is not itself a
// trusted proxy, falling back to X-Real-IP.
func clientIP(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	ip := net.ParseIP(peer)
	if ip == nil || !isTrustedProxy(ip) {
		return peer
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := net.ParseIP(strings.TrimSpace(hops[i]))
		if hop == nil {
			continue
		}
		if !isTrustedProxy(hop) {
			return hop.String()
		}
	}
	if xri := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); xri != nil {
		return xri.String()
	}
	return peer
}

// scanMarkers are fragments of path traversal, injection and admin-panel
// scans. None occur in legitimate ledger URLs.
var scanMarkers = []string{
	"../", "..\\", ".env", ".git", ".ssh", "wp-admin", "phpmyadmin",
	"admin.php", "config.php", "etc/passwd", "cmd.exe",
	"<script", "javascript:", "eval(", "union select",
}

var scannerAgents = []string{"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab"}

type screenRule struct {
	name  string
	match func(r *http.Request) bool
}

var screenRules = []screenRule{
	{"path", func(r *http.Request) bool {
		return containsAny(strings.ToLower(r.URL.Path), scanMarkers)
	}},
	{"query", func(r *http.Request) bool {
		q, err := url.QueryUnescape(r.URL.RawQuery)
		if err != nil {
			q = r.URL.RawQuery
		}
		return containsAny(strings.ToLower(q), scanMarkers)
	}},
	{"user_agent", func(r *http.Request) bool {
		return containsAny(strings.ToLower(r.UserAgent()), scannerAgents)
	}},
	{"method", func(r *http.Request) bool {
		switch r.Method {
		case "TRACE", "TRACK", "DEBUG", "CONNECT":
			return true
		}
		return false
	}},
	{"long_url", func(r *http.Request) bool {
		return len(r.URL.RequestURI()) > 2048
	}},
	{"proxy_chain", func(r *http.Request) bool {
		return strings.Count(r.Header.Get("X-Forwarded-For"), ",") > 5
	}},
}

// screenRequest returns the names of the rules r trips, in rule order.
func screenRequest(r *http.Request) []string {
	var reasons []string
	for _, rule := range screenRules {
		if rule.match(r) {
			reasons = append(reasons, rule.name)
		}
	}
	return reasons
}

func containsAny(s string, markers []string) bool {
	return slices.ContainsFunc(markers, func(m string) bool { return strings.Contains(s, m) })
}
