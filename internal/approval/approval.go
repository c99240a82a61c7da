// Package approval asks the validation server whether a client request may
// proceed. Every request is cleared through the АМОЖНА? exchange before it
// touches the phonebook.
package approval

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"rksokd/internal/protocol"
	logx "rksokd/pkg/logx"
)

// DefaultTimeout bounds a whole exchange (dial + write + read).
const DefaultTimeout = 5 * time.Second

// maxReplyBytes caps the validation server's answer.
const maxReplyBytes = 4 << 20

// ErrUnavailable reports that the validation server could not be reached or
// did not answer in time. The server replies НИПОНЯЛ in that case.
var ErrUnavailable = errors.New("approval: validation server unavailable")

// Decision is the outcome of one approval exchange.
type Decision struct {
	Allowed bool

	// Reply holds the validation server's raw answer, terminator included.
	// A refusal is relayed to the client exactly as received.
	Reply []byte
}

// Client performs approval exchanges against a fixed address. It keeps no
// connection state; every Check dials fresh, like the original exchange.
type Client struct {
	addr    string
	timeout time.Duration
	log     logx.Logger
}

func NewClient(addr string, timeout time.Duration, log logx.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{addr: addr, timeout: timeout, log: log}
}

// Addr returns the validation server address the client dials.
func (c *Client) Addr() string { return c.addr }

// Check forwards the client's raw request under an АМОЖНА? line and
// classifies the answer. Transport failures come back as ErrUnavailable; an
// answer that opens with neither МОЖНА nor НИЛЬЗЯ comes back as
// protocol.ErrBadResponse.
func (c *Client) Check(ctx context.Context, rawRequest []byte) (Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write(protocol.EncodeApprovalRequest(rawRequest)); err != nil {
		return Decision{}, fmt.Errorf("%w: write: %v", ErrUnavailable, err)
	}

	reply, err := protocol.ReadMessage(conn, maxReplyBytes)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: read: %v", ErrUnavailable, err)
	}

	allowed, err := protocol.ParseApprovalReply(reply)
	if err != nil {
		return Decision{}, err
	}
	c.log.Debug("approval exchange complete",
		logx.String("addr", c.addr),
		logx.Bool("allowed", allowed),
	)
	return Decision{Allowed: allowed, Reply: reply}, nil
}
