package connectivity

import (
	"context"
	"log/slog"
	"net"
	"time"
)

// Probe is a Monitor that periodically dials a TCP address.
type Probe struct {
	Address  string
	Interval time.Duration
	Timeout  time.Duration
	Logger   *slog.Logger

	dial func(ctx context.Context, network, address string) (net.Conn, error)
}

// NewProbe creates a probe for address (host:port).
func NewProbe(address string, interval time.Duration) *Probe {
	return &Probe{
		Address:  address,
		Interval: interval,
		Timeout:  3 * time.Second,
		Logger:   slog.Default(),
	}
}

// Check dials once and reports whether the address accepted a connection.
func (p *Probe) Check(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dial := p.dial
	if dial == nil {
		var d net.Dialer
		dial = d.DialContext
	}

	conn, err := dial(ctx, "tcp", p.Address)
	if err != nil {
		p.logger().Debug("connectivity probe failed", "address", p.Address, "error", err)
		return false
	}
	conn.Close()
	return true
}

// Watch implements Monitor. The first probe runs immediately; afterwards
// only changes are published.
func (p *Probe) Watch(ctx context.Context) <-chan bool {
	ch := make(chan bool, 1)
	interval := p.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}

	go func() {
		defer close(ch)

		last := p.Check(ctx)
		publish(ch, last)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				online := p.Check(ctx)
				if online != last {
					p.logger().Info("connectivity changed", "address", p.Address, "online", online)
					last = online
					publish(ch, online)
				}
			}
		}
	}()
	return ch
}

func (p *Probe) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}
