package probe

import (
	"context"

	"netmon/internal/addrutil"
	"netmon/internal/stunutil"
)

// STUN discovers the public address through STUN binding requests.
type STUN struct {
	Prober *stunutil.Prober
}

func (s *STUN) DiscoverPublicAddress(ctx context.Context) (WAN, error) {
	res, err := s.Prober.Probe(ctx)
	if err != nil {
		return WAN{}, err
	}
	return WAN{Address: addrutil.Host(res.Mapped), NATType: res.NATType}, nil
}
