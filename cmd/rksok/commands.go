package main

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rksokd/internal/protocol"
)

// maxReplyBytes caps how much of a server answer the client will buffer.
const maxReplyBytes = 4 << 20

// clientOptions points at the persistent flags; cobra fills them before any
// RunE fires.
type clientOptions struct {
	server  *string
	timeout *time.Duration
}

// exchangeRaw performs one connect-send-read cycle and returns the raw
// answer, terminator included.
func (o *clientOptions) exchangeRaw(ctx context.Context, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, *o.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", *o.server)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", *o.server, err)
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	if _, err := conn.Write(payload); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	raw, err := protocol.ReadMessage(conn, maxReplyBytes)
	if err != nil {
		return nil, fmt.Errorf("read answer: %w", err)
	}
	return raw, nil
}

func (o *clientOptions) exchange(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	raw, err := o.exchangeRaw(ctx, req.Encode())
	if err != nil {
		return nil, err
	}
	return protocol.ParseResponse(raw)
}

func newGetCommand(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get NAME",
		Short: "Fetch the phones stored for NAME",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.exchange(cmd.Context(), &protocol.Request{Verb: protocol.VerbGet, Name: args[0]})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch resp.Status {
			case protocol.StatusOK:
				renderPhones(out, args[0], resp.Body)
				return nil
			case protocol.StatusNotFound:
				fmt.Fprintf(out, "no record for %q\n", args[0])
				return nil
			default:
				return fmt.Errorf("server answered %s", statusLine(resp))
			}
		},
	}
}

func newWriteCommand(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "write NAME PHONE...",
		Short: "Store phones for NAME, replacing any existing record",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &protocol.Request{Verb: protocol.VerbWrite, Name: args[0], Phones: args[1:]}
			resp, err := opts.exchange(cmd.Context(), req)
			if err != nil {
				return err
			}
			if resp.Status != protocol.StatusOK {
				return fmt.Errorf("server answered %s", statusLine(resp))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %d phone(s) for %q\n", len(args)-1, args[0])
			return nil
		},
	}
}

func newDeleteCommand(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Remove the record stored for NAME",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.exchange(cmd.Context(), &protocol.Request{Verb: protocol.VerbDelete, Name: args[0]})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch resp.Status {
			case protocol.StatusOK:
				fmt.Fprintf(out, "deleted %q\n", args[0])
				return nil
			case protocol.StatusNotFound:
				fmt.Fprintf(out, "no record for %q\n", args[0])
				return nil
			default:
				return fmt.Errorf("server answered %s", statusLine(resp))
			}
		},
	}
}

func newCheckCommand(opts *clientOptions) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Ask a validation server whether a request would be allowed",
		Long: "Sends an " + protocol.WordAsk + " exchange carrying a sample " +
			string(protocol.VerbGet) + " request to the address named by --server.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			probe := &protocol.Request{Verb: protocol.VerbGet, Name: name}
			raw, err := opts.exchangeRaw(cmd.Context(), protocol.EncodeApprovalRequest(probe.Encode()))
			if err != nil {
				return err
			}
			allowed, err := protocol.ParseApprovalReply(raw)
			if err != nil {
				return fmt.Errorf("unparseable answer %q: %w", firstLine(raw), err)
			}
			out := cmd.OutOrStdout()
			if allowed {
				fmt.Fprintf(out, "%s: the request would be allowed\n", protocol.WordAllowed)
				return nil
			}
			fmt.Fprintf(out, "%s\n", firstLine(raw))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "Проверка", "name used in the probe request")
	return cmd
}

// statusLine renders a status word with the first body line, which carries
// the validation server's comment on relayed refusals.
func statusLine(resp *protocol.Response) string {
	if len(resp.Body) > 0 {
		return string(resp.Status) + ": " + resp.Body[0]
	}
	return string(resp.Status)
}

func firstLine(raw []byte) string {
	s := strings.TrimSuffix(string(raw), protocol.Terminator)
	if i := strings.Index(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}
