package stunutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pion/stun/v3"
)

const (
	NATTypeUnknown          = "unknown"
	NATTypeSymmetric        = "symmetric"
	NATTypeConeOrRestricted = "cone_or_restricted"
)

// ErrNoServers is returned when a probe is attempted with an empty server list.
var ErrNoServers = errors.New("no STUN servers configured")

// Result is the outcome of a public address discovery.
type Result struct {
	// Mapped is the first server-reflexive "ip:port" observed.
	Mapped string
	// NATType is inferred by comparing the mappings seen by each server.
	NATType string
	// Servers counts the servers that answered.
	Servers int
}

// Prober queries STUN servers for the host's public mapped address.
type Prober struct {
	Servers []string
	// Timeout bounds each individual server exchange. Zero means the caller's
	// context is the only bound.
	Timeout time.Duration
}

// Probe asks every server in turn and succeeds if at least one answered.
// Note: The mapped address is for the STUN socket and may not match other sockets.
func (p *Prober) Probe(ctx context.Context) (Result, error) {
	if len(p.Servers) == 0 {
		return Result{NATType: NATTypeUnknown}, ErrNoServers
	}

	mapped := make([]string, 0, len(p.Servers))
	var lastErr error
	for _, server := range p.Servers {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		addr, err := probeServer(ctx, server, p.Timeout)
		if err != nil {
			lastErr = fmt.Errorf("stun %s: %w", server, err)
			continue
		}
		mapped = append(mapped, addr)
	}

	if len(mapped) == 0 {
		if lastErr == nil {
			lastErr = errors.New("STUN probe failed")
		}
		return Result{NATType: NATTypeUnknown}, lastErr
	}
	return Result{Mapped: mapped[0], NATType: Classify(mapped), Servers: len(mapped)}, nil
}

// Classify infers NAT type by comparing mapped addresses from multiple servers.
func Classify(addrs []string) string {
	if len(addrs) < 2 {
		return NATTypeUnknown
	}
	first := addrs[0]
	for _, addr := range addrs[1:] {
		if addr != first {
			return NATTypeSymmetric
		}
	}
	return NATTypeConeOrRestricted
}

func probeServer(ctx context.Context, server string, timeout time.Duration) (string, error) {
	uriStr := strings.TrimSpace(server)
	if uriStr == "" {
		return "", errors.New("empty STUN server")
	}
	if !strings.HasPrefix(uriStr, "stun:") {
		uriStr = "stun:" + uriStr
	}

	uri, err := stun.ParseURI(uriStr)
	if err != nil {
		return "", err
	}

	client, err := stun.DialURI(uri, &stun.DialConfig{})
	if err != nil {
		return "", err
	}
	defer client.Close()

	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	result := make(chan stun.XORMappedAddress, 1)
	fail := make(chan error, 1)

	go func() {
		var addr stun.XORMappedAddress
		err := client.Do(msg, func(res stun.Event) {
			if res.Error != nil {
				fail <- res.Error
				return
			}
			if err := addr.GetFrom(res.Message); err != nil {
				fail <- err
				return
			}
			result <- addr
		})
		if err != nil {
			select {
			case fail <- err:
			default:
			}
		}
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case addr := <-result:
		return addr.String(), nil
	case err := <-fail:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
