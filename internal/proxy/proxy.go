// Package proxy runs the loopback HTTP(S) proxy that narrows a sandboxed
// command's network access to an allow or deny list of domains.
package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/elazarl/goproxy"
)

// Rules selects which domains a command may reach. A non-empty Allow list
// wins: only matching domains pass. Otherwise anything matching Deny is
// refused. Both lists accept "*.example.com" wildcards.
type Rules struct {
	Allow []string `yaml:"allow_domains"`
	Deny  []string `yaml:"deny_domains"`
}

func (r Rules) Empty() bool {
	return len(r.Allow) == 0 && len(r.Deny) == 0
}

// Allows reports whether domain passes the rules.
func (r Rules) Allows(domain string) bool {
	domain = normalizeDomain(domain)

	if len(r.Allow) > 0 {
		for _, pattern := range r.Allow {
			if MatchDomain(domain, normalizeDomain(pattern)) {
				return true
			}
		}
		return false
	}
	for _, pattern := range r.Deny {
		if MatchDomain(domain, normalizeDomain(pattern)) {
			return false
		}
	}
	return true
}

// MatchDomain reports whether domain matches pattern, case-insensitively.
// "*.example.com" matches every subdomain but not example.com itself.
func MatchDomain(domain, pattern string) bool {
	domain = strings.ToLower(domain)
	pattern = strings.ToLower(pattern)

	if domain == pattern {
		return true
	}
	if suffix, ok := strings.CutPrefix(pattern, "*"); ok && strings.HasPrefix(suffix, ".") {
		return strings.HasSuffix(domain, suffix)
	}
	return false
}

// Proxy is a forward proxy enforcing Rules. HTTPS goes through CONNECT
// tunnels and is filtered on the CONNECT host; TLS is never terminated.
type Proxy struct {
	rules   Rules
	logger  *slog.Logger
	blocked atomic.Int64

	listener net.Listener
	server   *http.Server
}

func New(rules Rules, logger *slog.Logger) *Proxy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Proxy{rules: rules, logger: logger}
}

// Start listens on a random loopback port and returns its host:port.
func (p *Proxy) Start() (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("proxy listen: %w", err)
	}
	p.listener = ln

	gpx := goproxy.NewProxyHttpServer()

	// Dial upstream directly; honouring *_PROXY here would loop back to us.
	gpx.Tr = &http.Transport{
		Proxy: nil,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	refused := goproxy.ReqConditionFunc(func(req *http.Request, _ *goproxy.ProxyCtx) bool {
		return !p.rules.Allows(requestHost(req))
	})

	gpx.OnRequest(refused).DoFunc(
		func(req *http.Request, _ *goproxy.ProxyCtx) (*http.Request, *http.Response) {
			host := requestHost(req)
			p.refuse(host, "http")
			return nil, goproxy.NewResponse(req, goproxy.ContentTypeText, http.StatusForbidden,
				fmt.Sprintf("warden: domain %q blocked by network policy", host))
		})

	gpx.OnRequest(refused).HandleConnect(goproxy.FuncHttpsHandler(
		func(host string, _ *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
			p.refuse(hostOnly(host), "connect")
			return goproxy.RejectConnect, host
		}))

	p.server = &http.Server{
		Handler:           gpx,
		ReadHeaderTimeout: 30 * time.Second,
	}

	go p.server.Serve(ln) //nolint:errcheck // returns ErrServerClosed on shutdown
	p.logger.Debug("network proxy listening", "addr", ln.Addr().String(),
		"allow", p.rules.Allow, "deny", p.rules.Deny)
	return ln.Addr().String(), nil
}

// Addr is the listen address, or "" before Start.
func (p *Proxy) Addr() string {
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// Blocked counts refused requests since Start.
func (p *Proxy) Blocked() int64 {
	return p.blocked.Load()
}

func (p *Proxy) Stop(ctx context.Context) error {
	if p.server == nil {
		return nil
	}
	return p.server.Shutdown(ctx)
}

// Env returns the proxy variables a child needs to route through p. The
// NO_PROXY variants are cleared so nothing bypasses the filter.
func (p *Proxy) Env() map[string]string {
	if p.listener == nil {
		return nil
	}
	proxyURL := "http://" + p.Addr()
	return map[string]string{
		"HTTP_PROXY":  proxyURL,
		"http_proxy":  proxyURL,
		"HTTPS_PROXY": proxyURL,
		"https_proxy": proxyURL,
		"ALL_PROXY":   proxyURL,
		"all_proxy":   proxyURL,
		"NO_PROXY":    "",
		"no_proxy":    "",
	}
}

func (p *Proxy) refuse(host, kind string) {
	p.blocked.Add(1)
	p.logger.Warn("blocked connection (domain not allowed by policy)", "domain", host, "kind", kind)
}

func requestHost(req *http.Request) string {
	if host := hostOnly(req.URL.Host); host != "" {
		return host
	}
	return hostOnly(req.Host)
}

func normalizeDomain(d string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(d), "."))
}

// hostOnly strips the port from host:port, returning other input as is.
func hostOnly(hostport string) string {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport
	}
	return host
}
