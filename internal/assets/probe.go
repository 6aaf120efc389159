package assets

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/fluxbase-eu/webpackbridge/internal/bundleinfo"
	"github.com/fluxbase-eu/webpackbridge/internal/observability"
)

// Probe results as recorded in metrics
const (
	ProbeReachable   = "reachable"
	ProbeUnreachable = "unreachable"
	ProbeCached      = "cached"
)

const (
	defaultProbeTimeout = 250 * time.Millisecond
	probeCacheSize      = 64
)

// ProbeOptions configures dev server detection
type ProbeOptions struct {
	Timeout time.Duration
	// CacheTTL keeps probe results for this long; zero probes every time
	CacheTTL time.Duration
	// VerifyLiveness rejects a dev server whose recorded process is gone
	VerifyLiveness bool
}

// DevProbe decides whether a recorded dev server can be used
type DevProbe struct {
	opts     ProbeOptions
	cache    *expirable.LRU[string, bool]
	hostname string
	metrics  *observability.Metrics
}

// NewDevProbe creates a probe
func NewDevProbe(opts ProbeOptions) *DevProbe {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultProbeTimeout
	}

	p := &DevProbe{opts: opts}
	if opts.CacheTTL > 0 {
		p.cache = expirable.NewLRU[string, bool](probeCacheSize, nil, opts.CacheTTL)
	}
	if host, err := os.Hostname(); err == nil {
		p.hostname = host
	}
	return p
}

// WithMetrics records probes on m
func (p *DevProbe) WithMetrics(m *observability.Metrics) *DevProbe {
	p.metrics = m
	return p
}

// Available reports whether info points at a live, reachable dev server
func (p *DevProbe) Available(ctx context.Context, info bundleinfo.DevServerInfo) bool {
	if info.Address == "" {
		return false
	}

	if p.opts.VerifyLiveness && info.Session != nil && info.Session.Hostname == p.hostname {
		if !SessionAlive(*info.Session) {
			log.Debug().Int32("pid", info.Session.PID).Str("address", info.Address).Msg("Dev server process is gone")
			return false
		}
	}

	key := info.Address
	if info.Session != nil {
		key += "#" + info.Session.Token
	}
	if p.cache != nil {
		if reachable, ok := p.cache.Get(key); ok {
			p.metrics.RecordProbe(ProbeCached, 0)
			return reachable
		}
	}

	start := time.Now()
	reachable := p.dial(ctx, info.Address)
	result := ProbeUnreachable
	if reachable {
		result = ProbeReachable
	}
	p.metrics.RecordProbe(result, time.Since(start))

	if p.cache != nil {
		p.cache.Add(key, reachable)
	}
	return reachable
}

func (p *DevProbe) dial(ctx context.Context, address string) bool {
	dialer := net.Dialer{Timeout: p.opts.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		log.Debug().Err(err).Str("address", address).Msg("Dev server is not reachable")
		return false
	}
	_ = conn.Close()
	return true
}

// SessionAlive reports whether the process of a session on this host is
// still running. A process with the same pid but another start time is a
// different process.
func SessionAlive(session bundleinfo.Session) bool {
	if session.PID <= 0 {
		return false
	}

	proc, err := process.NewProcess(session.PID)
	if err != nil {
		return false
	}
	running, err := proc.IsRunning()
	if err != nil || !running {
		return false
	}

	if session.ProcessStart != 0 {
		created, err := proc.CreateTime()
		if err == nil && created != session.ProcessStart {
			return false
		}
	}
	return true
}
