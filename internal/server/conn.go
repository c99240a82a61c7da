package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"rksokd/internal/phonebook"
	"rksokd/internal/protocol"
)

// timeoutReader refreshes the read deadline before every chunk, so a slow
// client is bounded per read rather than per request.
type timeoutReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (r timeoutReader) Read(p []byte) (int, error) {
	if r.timeout > 0 {
		if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
			return 0, err
		}
	}
	return r.conn.Read(p)
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	start := time.Now()
	log := s.log.With(
		slog.String("req_id", uuid.NewString()),
		slog.String("remote", conn.RemoteAddr().String()),
	)

	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			log.Error("connection handler panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	s.metrics.ConnectionsTotal.Inc()
	s.metrics.ConnectionsActive.Inc()
	defer s.metrics.ConnectionsActive.Dec()

	resp := s.exchange(ctx, conn, log, start)
	if len(resp) > 0 {
		if s.cfg.ReadTimeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		if _, err := conn.Write(resp); err != nil {
			log.Debug("response write failed", slog.Any("err", err))
		}
	}
	s.metrics.RequestSeconds.Observe(time.Since(start).Seconds())
}

// exchange reads and answers one request, returning the raw response bytes.
// Anything the server cannot read, parse, or clear with the validation
// server is answered НИПОНЯЛ; a refusal is relayed byte for byte.
func (s *Server) exchange(ctx context.Context, conn net.Conn, log *slog.Logger, start time.Time) []byte {
	raw, err := protocol.ReadMessage(timeoutReader{conn: conn, timeout: s.cfg.ReadTimeout}, s.cfg.MaxRequestBytes)
	if err != nil {
		s.metrics.ResponsesTotal.WithLabelValues(labelIncorrect).Inc()
		log.Warn("request read failed", slog.Any("err", err))
		return protocol.EncodeResponse(protocol.StatusIncorrect)
	}

	req, err := protocol.ParseRequest(raw)
	if err != nil {
		s.metrics.ResponsesTotal.WithLabelValues(labelIncorrect).Inc()
		log.Info("unparseable request", slog.Int("bytes", len(raw)))
		return protocol.EncodeResponse(protocol.StatusIncorrect)
	}
	log = log.With(
		slog.String("verb", verbLabel(req.Verb)),
		slog.String("name", req.Name),
	)
	s.metrics.RequestsTotal.WithLabelValues(verbLabel(req.Verb)).Inc()

	dec, err := s.approve.Check(ctx, req.Raw)
	if err != nil {
		outcome := approvalUnavailable
		if errors.Is(err, protocol.ErrBadResponse) {
			outcome = approvalBadReply
		}
		s.metrics.ApprovalsTotal.WithLabelValues(outcome).Inc()
		s.metrics.ResponsesTotal.WithLabelValues(labelIncorrect).Inc()
		log.Warn("approval check failed", slog.Any("err", err))
		return protocol.EncodeResponse(protocol.StatusIncorrect)
	}
	if !dec.Allowed {
		s.metrics.ApprovalsTotal.WithLabelValues(approvalDenied).Inc()
		s.metrics.ResponsesTotal.WithLabelValues(labelForbidden).Inc()
		log.Info("request denied", slog.Duration("dur", time.Since(start)))
		return dec.Reply
	}
	s.metrics.ApprovalsTotal.WithLabelValues(approvalAllowed).Inc()

	st, body := s.dispatch(ctx, req, log)
	s.metrics.ResponsesTotal.WithLabelValues(statusLabel(st)).Inc()
	log.Info("request served",
		slog.String("status", statusLabel(st)),
		slog.Duration("dur", time.Since(start)),
	)
	return protocol.EncodeResponse(st, body...)
}

func (s *Server) dispatch(ctx context.Context, req *protocol.Request, log *slog.Logger) (protocol.Status, []string) {
	switch req.Verb {
	case protocol.VerbGet:
		phones, err := s.store.Get(ctx, req.Name)
		if err != nil {
			return s.storeStatus(err, log), nil
		}
		return protocol.StatusOK, phones
	case protocol.VerbWrite:
		if err := s.store.Put(ctx, req.Name, req.Phones); err != nil {
			return s.storeStatus(err, log), nil
		}
		return protocol.StatusOK, nil
	case protocol.VerbDelete:
		if err := s.store.Delete(ctx, req.Name); err != nil {
			return s.storeStatus(err, log), nil
		}
		return protocol.StatusOK, nil
	}
	return protocol.StatusIncorrect, nil
}

// storeStatus maps phonebook errors onto wire statuses. The protocol has no
// server-error status, so unexpected storage failures also answer НИПОНЯЛ.
func (s *Server) storeStatus(err error, log *slog.Logger) protocol.Status {
	switch {
	case errors.Is(err, phonebook.ErrNotFound):
		return protocol.StatusNotFound
	case errors.Is(err, phonebook.ErrBadName):
		return protocol.StatusIncorrect
	default:
		log.Error("phonebook operation failed", slog.Any("err", err))
		return protocol.StatusIncorrect
	}
}
