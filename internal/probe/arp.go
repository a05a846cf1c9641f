package probe

import (
	"context"
	"net"
	"strings"

	"netmon/internal/addrutil"
	"netmon/internal/execx"
	"netmon/internal/model"
)

const broadcastHardwareID = "FF:FF:FF:FF:FF:FF"

// ARP lists neighbours from the system ARP cache.
type ARP struct {
	Runner execx.Runner
	// LocalAddr is consulted when the arp output carries no interface header.
	LocalAddr func() string
}

func NewARP(runner execx.Runner) *ARP {
	return &ARP{Runner: runner, LocalAddr: addrutil.LocalIPv4}
}

func (a *ARP) DiscoverPeers(ctx context.Context) (LAN, error) {
	out, err := a.Runner.Output(ctx, "arp", "-a")
	if err != nil {
		return LAN{}, err
	}
	lan := ParseARP(out)
	if lan.LocalAddress == "" && a.LocalAddr != nil {
		lan.LocalAddress = a.LocalAddr()
	}
	return lan, nil
}

// ParseARP understands both the BSD/Linux form
//
//	? (10.0.0.2) at aa:bb:cc:dd:ee:ff [ether] on eth0
//
// and the Windows form
//
//	Interface: 10.0.0.5 --- 0x3
//	  10.0.0.2          aa-bb-cc-dd-ee-ff     dynamic
func ParseARP(out string) LAN {
	var lan LAN
	for _, raw := range strings.Split(out, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "Interface:") {
			fields := strings.Fields(line)
			if len(fields) >= 2 && lan.LocalAddress == "" {
				lan.LocalAddress = fields[1]
			}
			continue
		}

		var peer model.Peer
		var ok bool
		if strings.Contains(line, " at ") {
			peer, ok = parseBSDLine(line)
		} else {
			peer, ok = parseWindowsLine(line)
		}
		if !ok || peer.HardwareID == broadcastHardwareID {
			continue
		}
		lan.Peers = append(lan.Peers, peer)
	}
	lan.Peers = model.DedupePeers(lan.Peers)
	return lan
}

func parseBSDLine(line string) (model.Peer, bool) {
	fields := strings.Fields(line)
	var ip, mac, kind string
	for i, f := range fields {
		switch {
		case strings.HasPrefix(f, "(") && strings.HasSuffix(f, ")") && ip == "":
			ip = strings.Trim(f, "()")
		case f == "at" && i+1 < len(fields):
			mac = fields[i+1]
		case strings.HasPrefix(f, "[") && strings.HasSuffix(f, "]"):
			kind = strings.Trim(f, "[]")
		}
	}
	if net.ParseIP(ip) == nil || !isHardwareID(mac) {
		return model.Peer{}, false
	}
	return model.Peer{Address: ip, HardwareID: model.NormalizeHardwareID(mac), Kind: kind}, true
}

func parseWindowsLine(line string) (model.Peer, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return model.Peer{}, false
	}
	if net.ParseIP(fields[0]) == nil || !isHardwareID(fields[1]) {
		return model.Peer{}, false
	}
	kind := ""
	if len(fields) >= 3 {
		kind = fields[2]
	}
	return model.Peer{Address: fields[0], HardwareID: model.NormalizeHardwareID(fields[1]), Kind: kind}, true
}

func isHardwareID(s string) bool {
	_, err := net.ParseMAC(model.NormalizeHardwareID(s))
	return err == nil
}
