package stunutil

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/pion/stun/v3"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	if got := Classify([]string{"1.2.3.4:1"}); got != NATTypeUnknown {
		t.Fatalf("got=%q", got)
	}
	if got := Classify([]string{"1.2.3.4:1", "1.2.3.4:1"}); got != NATTypeConeOrRestricted {
		t.Fatalf("got=%q", got)
	}
	if got := Classify([]string{"1.2.3.4:1", "1.2.3.4:2"}); got != NATTypeSymmetric {
		t.Fatalf("got=%q", got)
	}
}

func TestProbe_NoServers(t *testing.T) {
	t.Parallel()

	p := &Prober{}
	res, err := p.Probe(context.Background())
	if !errors.Is(err, ErrNoServers) {
		t.Fatalf("err=%v", err)
	}
	if res.NATType != NATTypeUnknown {
		t.Fatalf("nat=%q", res.NATType)
	}
}

func TestProbe_LocalServer(t *testing.T) {
	t.Parallel()

	addr := startBindingServer(t)
	p := &Prober{Servers: []string{addr, addr}, Timeout: 2 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := p.Probe(ctx)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if res.Servers != 2 {
		t.Fatalf("servers=%d", res.Servers)
	}
	host, _, err := net.SplitHostPort(res.Mapped)
	if err != nil || host != "127.0.0.1" {
		t.Fatalf("mapped=%q", res.Mapped)
	}
}

func TestProbe_UnreachableServerTimesOut(t *testing.T) {
	t.Parallel()

	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	defer conn.Close()

	// A socket that never answers.
	p := &Prober{Servers: []string{conn.LocalAddr().String()}, Timeout: 100 * time.Millisecond}
	if _, err := p.Probe(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

// startBindingServer answers STUN binding requests with the sender's address.
func startBindingServer(t *testing.T) string {
	t.Helper()

	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	go func() {
		buf := make([]byte, 1500)
		for {
			n, from, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			req := &stun.Message{Raw: append([]byte(nil), buf[:n]...)}
			if err := req.Decode(); err != nil {
				continue
			}
			udp := from.(*net.UDPAddr)
			res, err := stun.Build(
				stun.NewTransactionIDSetter(req.TransactionID),
				stun.BindingSuccess,
				&stun.XORMappedAddress{IP: udp.IP, Port: udp.Port},
				stun.Fingerprint,
			)
			if err != nil {
				continue
			}
			_, _ = conn.WriteTo(res.Raw, from)
		}
	}()

	return conn.LocalAddr().String()
}
