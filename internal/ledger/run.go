package ledger

import (
	"context"
	"errors"
	"time"

	"netmon/internal/wsconn"
)

// Transport is the duplex connection the ledger measures over.
type Transport interface {
	Sender
	Messages() <-chan string
	Events() <-chan wsconn.Event
}

// Run sends a token every interval and applies inbound traffic until ctx is
// cancelled. Lifecycle events are only logged; after an open the next token
// goes out one full interval later. While the connection is down sends fail
// and nothing is recorded, and tokens already sent stay unacked until an ack
// shows up.
func (l *Ledger) Run(ctx context.Context, t Transport, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("ledger: interval must be > 0")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	msgs := t.Messages()
	events := t.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			switch ev.Kind {
			case wsconn.EventOpen:
				l.logger.Info("ledger connection established")
				ticker.Reset(interval)
			case wsconn.EventClose:
				l.logger.Info("ledger connection closed", "error", ev.Err)
			default:
				l.logger.Warn("ledger connection error", "error", ev.Err)
			}
		case msg, ok := <-msgs:
			if !ok {
				msgs = nil
				continue
			}
			_ = l.Handle(msg)
		case <-ticker.C:
			if _, err := l.Tick(ctx, t); err != nil {
				if errors.Is(err, wsconn.ErrNotConnected) {
					l.logger.Debug("ledger token skipped", "error", err)
				} else {
					l.logger.Warn("ledger send failed", "error", err)
				}
			}
		}
	}
}
