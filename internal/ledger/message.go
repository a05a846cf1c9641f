package ledger

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind classifies an inbound message.
type Kind int

const (
	KindUnknown Kind = iota
	// KindAck is ":{token}>{serverTimestamp}", the server's receipt of a token.
	KindAck
	// KindPush is a bare timestamp the server sent on its own.
	KindPush
)

func (k Kind) String() string {
	switch k {
	case KindAck:
		return "ack"
	case KindPush:
		return "push"
	default:
		return "unknown"
	}
}

var (
	ackRe  = regexp.MustCompile(`^:([0-9]+)>([0-9]+)$`)
	pushRe = regexp.MustCompile(`^[0-9]+$`)
)

// Message is a parsed inbound message.
type Message struct {
	Kind Kind
	// Token is the echoed client token for acks.
	Token int64
	// ServerAt is the server timestamp carried by acks and pushes.
	ServerAt int64
	Raw      string
}

// ParseMessage classifies raw. Values that overflow int64 are unknown.
func ParseMessage(raw string) Message {
	msg := Message{Kind: KindUnknown, Raw: raw}
	s := strings.TrimSpace(raw)

	if m := ackRe.FindStringSubmatch(s); m != nil {
		token, err1 := strconv.ParseInt(m[1], 10, 64)
		at, err2 := strconv.ParseInt(m[2], 10, 64)
		if err1 != nil || err2 != nil {
			return msg
		}
		msg.Kind, msg.Token, msg.ServerAt = KindAck, token, at
		return msg
	}
	if pushRe.MatchString(s) {
		at, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return msg
		}
		msg.Kind, msg.ServerAt = KindPush, at
	}
	return msg
}

// FormatToken renders a token the way it goes on the wire.
func FormatToken(token int64) string {
	return strconv.FormatInt(token, 10)
}
