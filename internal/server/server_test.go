package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rksokd/internal/approval"
	"rksokd/internal/phonebook"
	"rksokd/internal/protocol"
	logx "rksokd/pkg/logx"
)

type fakeApprover struct {
	mu       sync.Mutex
	decision approval.Decision
	err      error
	got      [][]byte
}

func (f *fakeApprover) Check(_ context.Context, raw []byte) (approval.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, append([]byte(nil), raw...))
	if f.err != nil {
		return approval.Decision{}, f.err
	}
	return f.decision, nil
}

func (f *fakeApprover) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func (f *fakeApprover) call(i int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.got[i]
}

func allowAll() *fakeApprover {
	return &fakeApprover{decision: approval.Decision{
		Allowed: true,
		Reply:   []byte("МОЖНА РКСОК/1.0\r\n\r\n"),
	}}
}

func startServer(t *testing.T, cfg Config, appr Approver) (*Server, *Metrics, phonebook.Store) {
	t.Helper()
	if cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:0"
	}

	store, err := phonebook.Open(phonebook.Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m := NewMetrics(prometheus.NewRegistry())
	srv, err := New(cfg, store, appr, slog.New(slog.NewTextHandler(io.Discard, nil)), m)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		shCtx, shCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shCancel()
		_ = srv.Shutdown(shCtx)
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("serve loop did not exit")
		}
	})
	return srv, m, store
}

func roundTrip(t *testing.T, addr string, raw []byte) []byte {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write(raw)
	require.NoError(t, err)
	resp, err := io.ReadAll(conn)
	require.NoError(t, err)
	return resp
}

func rawReq(verb protocol.Verb, name string, phones ...string) []byte {
	req := &protocol.Request{Verb: verb, Name: name, Phones: phones}
	return req.Encode()
}

func TestServerWriteGetDelete(t *testing.T) {
	srv, m, _ := startServer(t, Config{}, allowAll())
	addr := srv.Addr().String()

	resp := roundTrip(t, addr, rawReq(protocol.VerbWrite, "Иван Хмурый", "89012345678", "02"))
	assert.Equal(t, "НОРМАЛДЫКС РКСОК/1.0\r\n\r\n", string(resp))

	resp = roundTrip(t, addr, rawReq(protocol.VerbGet, "Иван Хмурый"))
	assert.Equal(t, "НОРМАЛДЫКС РКСОК/1.0\r\n89012345678\r\n02\r\n\r\n", string(resp))

	resp = roundTrip(t, addr, rawReq(protocol.VerbDelete, "Иван Хмурый"))
	assert.Equal(t, "НОРМАЛДЫКС РКСОК/1.0\r\n\r\n", string(resp))

	resp = roundTrip(t, addr, rawReq(protocol.VerbGet, "Иван Хмурый"))
	assert.Equal(t, "НИНАШОЛ РКСОК/1.0\r\n\r\n", string(resp))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("get")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("write")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.ApprovalsTotal.WithLabelValues("allowed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ResponsesTotal.WithLabelValues("not_found")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.ConnectionsTotal))
}

func TestServerRejectsGarbage(t *testing.T) {
	ap := allowAll()
	srv, m, _ := startServer(t, Config{}, ap)

	resp := roundTrip(t, srv.Addr().String(), []byte("ЗДРАВСТВУЙ РКСОК/1.0\r\n\r\n"))
	assert.Equal(t, "НИПОНЯЛ РКСОК/1.0\r\n\r\n", string(resp))

	// A request that never parsed must not reach the validation server.
	assert.Zero(t, ap.calls())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ResponsesTotal.WithLabelValues("incorrect")))
}

func TestServerRelaysDenialVerbatim(t *testing.T) {
	reply := []byte("НИЛЬЗЯ РКСОК/1.0\r\nпо кочану\r\n\r\n")
	ap := &fakeApprover{decision: approval.Decision{Allowed: false, Reply: reply}}
	srv, m, store := startServer(t, Config{}, ap)

	resp := roundTrip(t, srv.Addr().String(), rawReq(protocol.VerbWrite, "Владимир", "55"))
	assert.Equal(t, reply, resp)

	_, err := store.Get(context.Background(), "Владимир")
	assert.ErrorIs(t, err, phonebook.ErrNotFound)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ApprovalsTotal.WithLabelValues("denied")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ResponsesTotal.WithLabelValues("forbidden")))
}

func TestServerForwardsRawRequest(t *testing.T) {
	ap := allowAll()
	srv, _, _ := startServer(t, Config{}, ap)

	raw := rawReq(protocol.VerbGet, "Иван")
	roundTrip(t, srv.Addr().String(), raw)

	require.Equal(t, 1, ap.calls())
	assert.Equal(t, raw, ap.call(0))
}

func TestServerApprovalUnavailable(t *testing.T) {
	ap := &fakeApprover{err: approval.ErrUnavailable}
	srv, m, _ := startServer(t, Config{}, ap)

	resp := roundTrip(t, srv.Addr().String(), rawReq(protocol.VerbGet, "Иван"))
	assert.Equal(t, "НИПОНЯЛ РКСОК/1.0\r\n\r\n", string(resp))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ApprovalsTotal.WithLabelValues("unavailable")))
}

func TestServerApprovalGarbledReply(t *testing.T) {
	ap := &fakeApprover{err: protocol.ErrBadResponse}
	srv, m, _ := startServer(t, Config{}, ap)

	resp := roundTrip(t, srv.Addr().String(), rawReq(protocol.VerbGet, "Иван"))
	assert.Equal(t, "НИПОНЯЛ РКСОК/1.0\r\n\r\n", string(resp))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ApprovalsTotal.WithLabelValues("bad_reply")))
}

func TestServerOversizedRequest(t *testing.T) {
	srv, _, _ := startServer(t, Config{MaxRequestBytes: 64}, allowAll())

	big := rawReq(protocol.VerbWrite, "Иван", strings.Repeat("8", 200))
	resp := roundTrip(t, srv.Addr().String(), big)
	assert.Equal(t, "НИПОНЯЛ РКСОК/1.0\r\n\r\n", string(resp))
}

func TestServerSlowClientTimesOut(t *testing.T) {
	srv, _, _ := startServer(t, Config{ReadTimeout: 150 * time.Millisecond}, allowAll())

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	// Half a request and then silence.
	_, err = conn.Write([]byte("ОТДОВАЙ Ив"))
	require.NoError(t, err)

	resp, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, "НИПОНЯЛ РКСОК/1.0\r\n\r\n", string(resp))
}

func TestServerUnsafeNameAnswersIncorrect(t *testing.T) {
	srv, _, _ := startServer(t, Config{}, allowAll())

	resp := roundTrip(t, srv.Addr().String(), rawReq(protocol.VerbGet, "../sneaky"))
	assert.Equal(t, "НИПОНЯЛ РКСОК/1.0\r\n\r\n", string(resp))
}

func TestServerMaxConnsServesSequentially(t *testing.T) {
	srv, _, _ := startServer(t, Config{MaxConns: 1}, allowAll())
	addr := srv.Addr().String()

	// A semaphore accounting bug would deadlock after the first request.
	for i := 0; i < 3; i++ {
		resp := roundTrip(t, addr, rawReq(protocol.VerbGet, "Никого"))
		assert.Equal(t, "НИНАШОЛ РКСОК/1.0\r\n\r\n", string(resp))
	}
}

func TestServerShutdownStopsAccepting(t *testing.T) {
	srv, _, _ := startServer(t, Config{}, allowAll())
	addr := srv.Addr().String()

	require.NoError(t, srv.Shutdown(context.Background()))

	_, err := net.Dial("tcp", addr)
	assert.Error(t, err)
}
