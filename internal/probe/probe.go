// Package probe implements the measurement capabilities one cycle fans out to:
// reachability, peer discovery and public address discovery.
package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"netmon/internal/model"
)

// ErrTimeout marks a sub-probe that did not finish within its budget.
var ErrTimeout = errors.New("probe timed out")

// Error reports which sub-probe failed a cycle.
type Error struct {
	Probe string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s probe failed: %v", e.Probe, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Reachability measures round trips to a target.
type Reachability interface {
	MeasureReachability(ctx context.Context, target string, count int) ([]int, error)
}

// Discovery lists devices on the local segment.
type Discovery interface {
	DiscoverPeers(ctx context.Context) (LAN, error)
}

// PublicAddress reports the address the outside world sees.
type PublicAddress interface {
	DiscoverPublicAddress(ctx context.Context) (WAN, error)
}

// LAN is the result of peer discovery.
type LAN struct {
	LocalAddress string
	Peers        []model.Peer
}

// WAN is the result of public address discovery.
type WAN struct {
	Address string
	NATType string
}

// Collector runs the three sub-probes of one cycle concurrently.
type Collector struct {
	Pinger    Reachability
	Discovery Discovery
	Public    PublicAddress

	Target string
	Count  int
	// Timeout bounds every sub-probe independently.
	Timeout time.Duration
}

// Collect returns a ProbeSet only when every sub-probe succeeded. The first
// failure cancels the siblings and is returned as a *Error.
func (c *Collector) Collect(ctx context.Context) (model.ProbeSet, error) {
	var (
		pings []int
		lan   LAN
		wan   WAN
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.run(gctx, "ping", func(ctx context.Context) (err error) {
			pings, err = c.Pinger.MeasureReachability(ctx, c.Target, c.Count)
			return err
		})
	})
	g.Go(func() error {
		return c.run(gctx, "arp", func(ctx context.Context) (err error) {
			lan, err = c.Discovery.DiscoverPeers(ctx)
			return err
		})
	})
	g.Go(func() error {
		return c.run(gctx, "public", func(ctx context.Context) (err error) {
			wan, err = c.Public.DiscoverPublicAddress(ctx)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return model.ProbeSet{}, err
	}

	return model.ProbeSet{
		PingLatenciesMs: pings,
		LocalAddress:    lan.LocalAddress,
		PublicAddress:   wan.Address,
		NATType:         wan.NATType,
		Peers:           model.DedupePeers(lan.Peers),
	}, nil
}

func (c *Collector) run(ctx context.Context, name string, fn func(context.Context) error) error {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	// A sub-probe that ignores its context must still not stall the cycle.
	select {
	case err := <-done:
		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return &Error{Probe: name, Err: err}
	case <-ctx.Done():
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrTimeout
		}
		return &Error{Probe: name, Err: err}
	}
}
