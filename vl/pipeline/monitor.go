package pipeline

import (
	"context"
	"net"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/edaniels/golog"
	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultProbeInterval is how often the network monitor dials the service hosts.
	DefaultProbeInterval = 5 * time.Second

	probeTimeout = 3 * time.Second
)

// A NetworkMonitor periodically dials the service hosts and remembers whether any answered.
// Reachable can be installed on a Pipeline with WithReachability.
type NetworkMonitor struct {
	logger    golog.Logger
	hosts     []string
	scheduler gocron.Scheduler
	dial      func(ctx context.Context, network, address string) (net.Conn, error)
	online    atomic.Bool
}

// NewNetworkMonitor returns a monitor for the hosts of urls. The network is assumed reachable
// until the first probe says otherwise.
func NewNetworkMonitor(urls []string, interval time.Duration, logger golog.Logger) (*NetworkMonitor, error) {
	hosts := make([]string, 0, len(urls))
	seen := map[string]bool{}
	for _, raw := range urls {
		host, err := dialAddress(raw)
		if err != nil {
			return nil, err
		}
		if !seen[host] {
			seen[host] = true
			hosts = append(hosts, host)
		}
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	dialer := &net.Dialer{Timeout: probeTimeout}
	m := &NetworkMonitor{
		logger:    logger,
		hosts:     hosts,
		scheduler: scheduler,
		dial:      dialer.DialContext,
	}
	m.online.Store(true)

	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	if _, err := scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { m.Probe(context.Background()) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	); err != nil {
		return nil, errors.Wrap(err, "scheduling network probe")
	}
	return m, nil
}

func dialAddress(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", errors.Errorf("cannot probe url %q", raw)
	}
	if u.Port() != "" {
		return u.Host, nil
	}
	port := "443"
	if u.Scheme == "http" {
		port = "80"
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

// Start begins probing in the background.
func (m *NetworkMonitor) Start() {
	m.scheduler.Start()
}

// Probe dials every host concurrently and records whether at least one accepted.
func (m *NetworkMonitor) Probe(ctx context.Context) bool {
	if len(m.hosts) == 0 {
		return m.online.Load()
	}
	var anyUp atomic.Bool
	g, gctx := errgroup.WithContext(ctx)
	for _, host := range m.hosts {
		host := host
		g.Go(func() error {
			conn, err := m.dial(gctx, "tcp", host)
			if err != nil {
				return nil
			}
			anyUp.Store(true)
			return conn.Close()
		})
	}
	if err := g.Wait(); err != nil {
		m.logger.Debugw("closing probe connection", "error", err)
	}
	up := anyUp.Load()
	if was := m.online.Swap(up); was != up {
		if up {
			m.logger.Info("network is reachable")
		} else {
			m.logger.Warn("network is unreachable")
		}
	}
	return up
}

// Reachable reports the result of the latest probe.
func (m *NetworkMonitor) Reachable() bool {
	return m.online.Load()
}

// Close stops probing.
func (m *NetworkMonitor) Close() error {
	return m.scheduler.Shutdown()
}
