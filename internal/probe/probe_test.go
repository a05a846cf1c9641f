package probe

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"netmon/internal/execx"
	"netmon/internal/model"
)

type scriptRunner struct {
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func (r *scriptRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	cmd := name + " " + strings.Join(args, " ")
	r.calls = append(r.calls, cmd)
	if err := r.errs[cmd]; err != nil {
		return "", err
	}
	return r.outputs[cmd], nil
}

var _ execx.Runner = (*scriptRunner)(nil)

const linuxPing = `PING google.com (142.250.74.46) 56(84) bytes of data.
64 bytes from arn09s22-in-f14.1e100.net (142.250.74.46): icmp_seq=1 ttl=117 time=12.3 ms
64 bytes from arn09s22-in-f14.1e100.net (142.250.74.46): icmp_seq=2 ttl=117 time=14.6 ms
64 bytes from arn09s22-in-f14.1e100.net (142.250.74.46): icmp_seq=3 ttl=117 time=9.1 ms

--- google.com ping statistics ---
3 packets transmitted, 3 received, 0% packet loss, time 2003ms
rtt min/avg/max/mdev = 9.100/12.000/14.600/2.200 ms`

const windowsPing = `Pinging google.com [142.250.74.46] with 32 bytes of data:
Reply from 142.250.74.46: bytes=32 time=21ms TTL=117
Reply from 142.250.74.46: bytes=32 time<1ms TTL=117`

func TestParsePing_Linux(t *testing.T) {
	t.Parallel()
	require.Equal(t, []int{12, 15, 9}, ParsePing(linuxPing))
}

func TestParsePing_Windows(t *testing.T) {
	t.Parallel()
	require.Equal(t, []int{21, 1}, ParsePing(windowsPing))
}

func TestPinger_UsesPlatformCountFlag(t *testing.T) {
	t.Parallel()

	r := &scriptRunner{outputs: map[string]string{"ping -n 2 example.com": windowsPing}}
	p := &Pinger{Runner: r, GOOS: "windows"}
	got, err := p.MeasureReachability(context.Background(), "example.com", 2)
	require.NoError(t, err)
	require.Equal(t, []int{21, 1}, got)
	require.Equal(t, []string{"ping -n 2 example.com"}, r.calls)
}

func TestPinger_NoRepliesIsError(t *testing.T) {
	t.Parallel()

	r := &scriptRunner{outputs: map[string]string{"ping -c 1 example.com": "1 packets transmitted, 0 received"}}
	p := &Pinger{Runner: r, GOOS: "linux"}
	_, err := p.MeasureReachability(context.Background(), "example.com", 1)
	require.Error(t, err)
}

func TestParseARP_Linux(t *testing.T) {
	t.Parallel()

	out := `? (10.0.0.1) at 0:1b:63:a:b:c [ether] on eth0
? (10.0.0.2) at aa:bb:cc:dd:ee:01 [ether] on eth0
? (10.0.0.9) at <incomplete> on eth0
? (10.0.0.255) at ff:ff:ff:ff:ff:ff [ether] on eth0
? (10.0.0.3) at aa:bb:cc:dd:ee:01 [ether] on eth0`

	lan := ParseARP(out)
	require.Empty(t, lan.LocalAddress)
	require.Equal(t, []model.Peer{
		{Address: "10.0.0.1", HardwareID: "00:1B:63:0A:0B:0C", Kind: "ether"},
		{Address: "10.0.0.2", HardwareID: "AA:BB:CC:DD:EE:01", Kind: "ether"},
	}, lan.Peers)
}

func TestParseARP_Windows(t *testing.T) {
	t.Parallel()

	out := `
Interface: 192.168.1.20 --- 0x3
  Internet Address      Physical Address      Type
  192.168.1.1           aa-bb-cc-dd-ee-ff     dynamic
  192.168.1.255         ff-ff-ff-ff-ff-ff     static
  224.0.0.22            01-00-5e-00-00-16     static`

	lan := ParseARP(out)
	require.Equal(t, "192.168.1.20", lan.LocalAddress)
	require.Len(t, lan.Peers, 2)
	require.Equal(t, model.Peer{Address: "192.168.1.1", HardwareID: "AA:BB:CC:DD:EE:FF", Kind: "dynamic"}, lan.Peers[0])
}

func TestARP_FallsBackToInterfaceAddress(t *testing.T) {
	t.Parallel()

	r := &scriptRunner{outputs: map[string]string{"arp -a": "? (10.0.0.2) at aa:bb:cc:dd:ee:01 [ether] on eth0"}}
	a := &ARP{Runner: r, LocalAddr: func() string { return "10.0.0.5" }}
	lan, err := a.DiscoverPeers(context.Background())
	require.NoError(t, err)
	require.Equal(t, "10.0.0.5", lan.LocalAddress)
	require.Len(t, lan.Peers, 1)
}

type fakePinger struct {
	pings []int
	err   error
	delay time.Duration
}

func (f *fakePinger) MeasureReachability(ctx context.Context, target string, count int) ([]int, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.pings, f.err
}

type fakeDiscovery struct {
	lan LAN
	err error
}

func (f *fakeDiscovery) DiscoverPeers(ctx context.Context) (LAN, error) { return f.lan, f.err }

type fakePublic struct {
	wan     WAN
	err     error
	blocked atomic.Bool
}

func (f *fakePublic) DiscoverPublicAddress(ctx context.Context) (WAN, error) {
	if f.blocked.Load() {
		<-ctx.Done()
		return WAN{}, ctx.Err()
	}
	return f.wan, f.err
}

func newCollector() (*Collector, *fakePinger, *fakeDiscovery, *fakePublic) {
	p := &fakePinger{pings: []int{12, 15, 9}}
	d := &fakeDiscovery{lan: LAN{
		LocalAddress: "10.0.0.5",
		Peers:        []model.Peer{{Address: "10.0.0.2", HardwareID: "AA:BB", Kind: "ether"}},
	}}
	w := &fakePublic{wan: WAN{Address: "203.0.113.7", NATType: "cone_or_restricted"}}
	c := &Collector{Pinger: p, Discovery: d, Public: w, Target: "example.com", Count: 3, Timeout: time.Second}
	return c, p, d, w
}

func TestCollect_AllSucceed(t *testing.T) {
	t.Parallel()

	c, _, _, _ := newCollector()
	set, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int{12, 15, 9}, set.PingLatenciesMs)
	require.Equal(t, "10.0.0.5", set.LocalAddress)
	require.Equal(t, "203.0.113.7", set.PublicAddress)
	require.Equal(t, "cone_or_restricted", set.NATType)
	require.Len(t, set.Peers, 1)
}

func TestCollect_SingleFailureFailsCycle(t *testing.T) {
	t.Parallel()

	c, _, d, _ := newCollector()
	d.err = errors.New("arp: exit status 1")

	_, err := c.Collect(context.Background())
	var perr *Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "arp", perr.Probe)
}

func TestCollect_TimeoutIsFailure(t *testing.T) {
	t.Parallel()

	c, _, _, w := newCollector()
	c.Timeout = 50 * time.Millisecond
	w.blocked.Store(true)

	start := time.Now()
	_, err := c.Collect(context.Background())
	require.ErrorIs(t, err, ErrTimeout)
	require.Less(t, time.Since(start), time.Second)
}

func TestCollect_ProbeIgnoringContextStillTimesOut(t *testing.T) {
	t.Parallel()

	c, p, _, _ := newCollector()
	c.Timeout = 50 * time.Millisecond
	p.delay = 500 * time.Millisecond

	start := time.Now()
	_, err := c.Collect(context.Background())
	require.ErrorIs(t, err, ErrTimeout)
	require.Less(t, time.Since(start), 400*time.Millisecond)
}
