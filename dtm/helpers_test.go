package dtm_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/smartenit-eu/smartenit-sub001/dtm"
	"github.com/smartenit-eu/smartenit-sub001/dtm/internal/testutil"
)

type sentVector struct {
	Addr dtm.PeerAddress
	C    dtm.CompensationVector
	R    *dtm.ReferenceVector
}

// recordingSender captures every Send. A non-nil err fails each call after
// recording it.
type recordingSender struct {
	mu   sync.Mutex
	sent []sentVector
	err  error
}

func (s *recordingSender) Send(_ context.Context, addr dtm.PeerAddress, c dtm.CompensationVector, r *dtm.ReferenceVector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentVector{Addr: addr, C: c, R: r})
	return s.err
}

func (s *recordingSender) Sent() []sentVector {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentVector(nil), s.sent...)
}

type mockDevice struct {
	mock.Mock
}

func (m *mockDevice) ApplyPolicer(_ context.Context, router dtm.Router, iface string, p dtm.Policer) error {
	return m.Called(router, iface, p).Error(0)
}

func (m *mockDevice) SetFilter(_ context.Context, router dtm.Router, iface string, active bool) error {
	return m.Called(router, iface, active).Error(0)
}

// managerFixture wires a TrafficManager to a single-worker dispatcher so
// compensation tasks run in submission order.
type managerFixture struct {
	dir        *testutil.StaticDirectory
	sender     *recordingSender
	metrics    *dtm.Metrics
	dispatcher *dtm.Dispatcher
	tm         *dtm.TrafficManager
}

func newManagerFixture(t *testing.T, dir *testutil.StaticDirectory, device dtm.DeviceConfigurator, opts ...dtm.TrafficManagerOption) *managerFixture {
	t.Helper()
	f := &managerFixture{dir: dir, sender: &recordingSender{}, metrics: dtm.NewMetrics(nil)}
	f.dispatcher = dtm.NewDispatcher(1, 16, time.Second, f.metrics)
	f.dispatcher.Start(context.Background())
	t.Cleanup(func() { _ = f.dispatcher.Close() })

	opts = append([]dtm.TrafficManagerOption{dtm.WithMetrics(f.metrics)}, opts...)
	tm, err := dtm.NewTrafficManager(dir, f.sender, device, f.dispatcher, opts...)
	require.NoError(t, err)
	f.tm = tm
	return f
}

// drain waits for every queued compensation task.
func (f *managerFixture) drain(t *testing.T) {
	t.Helper()
	require.NoError(t, f.dispatcher.Close())
}

func prefixValues(c dtm.CompensationVector) map[string]int64 {
	out := make(map[string]int64, len(c.Values))
	for _, v := range c.Values {
		out[v.Prefix.String()] = v.Value
	}
	return out
}
