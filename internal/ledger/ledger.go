// Package ledger reconciles timestamp tokens sent over a persistent
// connection against the acknowledgments and pushes coming back, and derives
// upload, receipt and download latency from them.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"
)

var (
	ErrUnrecognizedMessage = errors.New("unrecognized ledger message")
	ErrUnknownAck          = errors.New("ack for unknown token")
	ErrDuplicateAck        = errors.New("token already acknowledged")
)

// OutlierFactor is how many times larger the newest receipt latency must be
// than the one before it to be discarded as a connection artifact.
const OutlierFactor = 10

// Sender delivers one token to the remote endpoint.
type Sender interface {
	Send(ctx context.Context, msg string) error
}

// Outbound is a sent token. AckAt and ReceivedAckAt are set together, once.
type Outbound struct {
	SentAt        int64 `json:"sent_at"`
	Acked         bool  `json:"acked"`
	AckAt         int64 `json:"ack_at,omitempty"`
	ReceivedAckAt int64 `json:"received_ack_at,omitempty"`
}

// Inbound is a server push, keyed by its value.
type Inbound struct {
	ServerSentAt int64 `json:"server_sent_at"`
	ReceivedAt   int64 `json:"received_at"`
}

// Series holds the derived latencies, most recent first. Up* slices share
// UpLabels; DownLatency shares DownLabels.
type Series struct {
	UpLabels      []time.Time `json:"up_labels"`
	UpAckLatency  []int64     `json:"up_ack_latency_ms"`
	UpDownLatency []int64     `json:"up_down_latency_ms"`
	DownLabels    []time.Time `json:"down_labels"`
	DownLatency   []int64     `json:"down_latency_ms"`
}

// Ledger is safe for concurrent use.
type Ledger struct {
	now    func() time.Time
	logger *slog.Logger

	// OnHandle observes every inbound message after it was applied.
	OnHandle func(Message, error)

	mu        sync.Mutex
	up        map[int64]*Outbound
	down      map[int64]Inbound
	lastToken int64
}

// New creates an empty ledger. now defaults to time.Now.
func New(now func() time.Time, logger *slog.Logger) *Ledger {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Ledger{
		now:    now,
		logger: logger,
		up:     make(map[int64]*Outbound),
		down:   make(map[int64]Inbound),
	}
}

// Issue records a new outbound entry and returns its token. Tokens are the
// current Unix millisecond, bumped past the previous token when the clock has
// not advanced, so two sends in one millisecond never share a key.
func (l *Ledger) Issue() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	token := l.now().UnixMilli()
	if token <= l.lastToken {
		token = l.lastToken + 1
	}
	l.lastToken = token
	l.up[token] = &Outbound{SentAt: token}
	return token
}

// Tick issues a token and sends it. A token that could not be sent is
// removed again.
func (l *Ledger) Tick(ctx context.Context, s Sender) (int64, error) {
	token := l.Issue()
	if err := s.Send(ctx, FormatToken(token)); err != nil {
		l.mu.Lock()
		if e, ok := l.up[token]; ok && !e.Acked {
			delete(l.up, token)
		}
		l.mu.Unlock()
		return 0, fmt.Errorf("send token %d: %w", token, err)
	}
	return token, nil
}

// Handle applies one inbound message. Errors describe discarded traffic and
// are never fatal.
func (l *Ledger) Handle(raw string) error {
	msg := ParseMessage(raw)
	err := l.apply(msg)
	switch {
	case errors.Is(err, ErrUnrecognizedMessage):
		l.logger.Warn("ledger message unresolved", "message", raw)
	case errors.Is(err, ErrUnknownAck):
		l.logger.Warn("ack for unknown token", "token", msg.Token)
	case errors.Is(err, ErrDuplicateAck):
		l.logger.Debug("duplicate ack ignored", "token", msg.Token)
	}
	if l.OnHandle != nil {
		l.OnHandle(msg, err)
	}
	return err
}

func (l *Ledger) apply(msg Message) error {
	switch msg.Kind {
	case KindAck:
		received := l.now().UnixMilli()
		l.mu.Lock()
		defer l.mu.Unlock()
		e, ok := l.up[msg.Token]
		if !ok {
			return fmt.Errorf("%w: %d", ErrUnknownAck, msg.Token)
		}
		if e.Acked {
			return fmt.Errorf("%w: %d", ErrDuplicateAck, msg.Token)
		}
		e.Acked = true
		e.AckAt = msg.ServerAt
		e.ReceivedAckAt = received
		return nil
	case KindPush:
		received := l.now().UnixMilli()
		l.mu.Lock()
		defer l.mu.Unlock()
		if _, ok := l.down[msg.ServerAt]; ok {
			return nil
		}
		l.down[msg.ServerAt] = Inbound{ServerSentAt: msg.ServerAt, ReceivedAt: received}
		return nil
	default:
		return ErrUnrecognizedMessage
	}
}

// Clear drops both ledgers at once.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.up = make(map[int64]*Outbound)
	l.down = make(map[int64]Inbound)
}

// Outbound returns the sent tokens, most recent first.
func (l *Ledger) Outbound() []Outbound {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.outboundLocked()
}

func (l *Ledger) outboundLocked() []Outbound {
	out := make([]Outbound, 0, len(l.up))
	for _, e := range l.up {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt > out[j].SentAt })
	return out
}

// Inbound returns the pushes, most recent first.
func (l *Ledger) Inbound() []Inbound {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inboundLocked()
}

func (l *Ledger) inboundLocked() []Inbound {
	out := make([]Inbound, 0, len(l.down))
	for _, e := range l.down {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServerSentAt > out[j].ServerSentAt })
	return out
}

// Series derives the three latency series from one consistent snapshot.
func (l *Ledger) Series() Series {
	l.mu.Lock()
	up := l.outboundLocked()
	down := l.inboundLocked()
	l.mu.Unlock()
	return Derive(up, down)
}

// Derive computes the series from entries ordered most recent first.
func Derive(up []Outbound, down []Inbound) Series {
	s := Series{
		UpLabels:      make([]time.Time, 0, len(up)),
		UpAckLatency:  make([]int64, 0, len(up)),
		UpDownLatency: make([]int64, 0, len(up)),
		DownLabels:    make([]time.Time, 0, len(down)),
		DownLatency:   make([]int64, 0, len(down)),
	}
	for _, e := range up {
		var ack, receipt int64
		if e.Acked {
			ack = nonNegative(e.AckAt - e.SentAt)
			receipt = nonNegative(e.ReceivedAckAt - e.AckAt)
		}
		s.UpLabels = append(s.UpLabels, time.UnixMilli(e.SentAt))
		s.UpAckLatency = append(s.UpAckLatency, ack)
		s.UpDownLatency = append(s.UpDownLatency, receipt)
	}
	if isOutlier(up, s.UpDownLatency) {
		s.UpLabels = s.UpLabels[1:]
		s.UpAckLatency = s.UpAckLatency[1:]
		s.UpDownLatency = s.UpDownLatency[1:]
	}

	for _, e := range down {
		s.DownLabels = append(s.DownLabels, time.UnixMilli(e.ServerSentAt))
		s.DownLatency = append(s.DownLatency, nonNegative(e.ReceivedAt-e.ServerSentAt))
	}
	return s
}

// isOutlier compares the two most recent receipt latencies. Only
// acknowledged entries take part; an unacked zero says nothing about the
// connection.
func isOutlier(up []Outbound, receipt []int64) bool {
	if len(up) < 2 || !up[0].Acked || !up[1].Acked {
		return false
	}
	return receipt[0] > receipt[1]*OutlierFactor
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
