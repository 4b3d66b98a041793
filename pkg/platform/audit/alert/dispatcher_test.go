package alert_test

//go:generate mockgen -source=notifier.go -destination=mocks/mocks.go -package=mocks Notifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"workspace-audit/pkg/platform/audit"
	"workspace-audit/pkg/platform/audit/alert"
	"workspace-audit/pkg/platform/audit/alert/mocks"
	"workspace-audit/pkg/platform/circuit"
)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Notify(_ context.Context, a alert.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

// DispatcherSuite tests alert fan-out.
//
// Justification: Alert delivery must never block or fail the audit write path.
// Timeouts, fallback delivery and circuit breaking are failure-mode behaviors
// that integration tests cannot provoke reliably.
type DispatcherSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	primary  *mocks.MockNotifier
	fallback *recordingNotifier
	logger   *slog.Logger
	sample   alert.Alert
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.primary = mocks.NewMockNotifier(s.ctrl)
	s.primary.EXPECT().Name().Return("pager").AnyTimes()
	s.fallback = &recordingNotifier{}
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.sample = alert.Alert{Type: alert.TypeCriticalBatch, Severity: audit.SeverityCritical, Description: "x"}
}

func (s *DispatcherSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *DispatcherSuite) newDispatcher(opts ...alert.DispatcherOption) *alert.Dispatcher {
	base := []alert.DispatcherOption{alert.WithLogger(s.logger), alert.WithFallback(s.fallback)}
	return alert.NewDispatcher([]alert.Notifier{s.primary}, append(base, opts...)...)
}

func (s *DispatcherSuite) TestDelivers() {
	s.primary.EXPECT().Notify(gomock.Any(), s.sample).Return(nil)

	err := s.newDispatcher().Dispatch(context.Background(), s.sample)

	s.NoError(err)
	s.Empty(s.fallback.alerts, "fallback only used when nothing delivered")
}

func (s *DispatcherSuite) TestFailureFallsBack() {
	s.primary.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(errors.New("webhook down"))

	err := s.newDispatcher().Dispatch(context.Background(), s.sample)

	s.Require().Error(err)
	s.Contains(err.Error(), "notify pager")
	s.Len(s.fallback.alerts, 1)
}

func (s *DispatcherSuite) TestTimeoutBoundsSlowNotifier() {
	s.primary.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ alert.Alert) error {
			<-ctx.Done()
			return ctx.Err()
		})

	start := time.Now()
	err := s.newDispatcher(alert.WithTimeout(20*time.Millisecond)).Dispatch(context.Background(), s.sample)

	s.ErrorIs(err, context.DeadlineExceeded)
	s.Less(time.Since(start), time.Second)
	s.Len(s.fallback.alerts, 1)
}

func (s *DispatcherSuite) TestOpenCircuitSkipsNotifier() {
	s.primary.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(errors.New("down")).Times(2)

	d := s.newDispatcher(alert.WithBreakerOptions(circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour)))
	for range 2 {
		s.Error(d.Dispatch(context.Background(), s.sample))
	}

	// Third dispatch: circuit is open, the mock must not be called.
	s.NoError(d.Dispatch(context.Background(), s.sample))
	s.Len(s.fallback.alerts, 3)
}

func (s *DispatcherSuite) TestForBatch() {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	s.Run("no qualifying events", func() {
		_, ok := alert.ForBatch([]audit.Event{
			{ID: "a", Severity: audit.SeverityHigh, Success: true},
			{ID: "b", Severity: audit.SeverityMedium, Success: false},
		}, now)
		s.False(ok)
	})

	s.Run("one alert for all qualifying events", func() {
		a, ok := alert.ForBatch([]audit.Event{
			{ID: "a", Severity: audit.SeverityCritical, Success: true},
			{ID: "b", Severity: audit.SeverityLow, Success: true},
			{ID: "c", Severity: audit.SeverityHigh, Success: false},
		}, now)
		s.Require().True(ok)
		s.Equal(alert.TypeCriticalBatch, a.Type)
		s.Equal(audit.SeverityCritical, a.Severity)
		s.Equal([]string{"a", "c"}, a.EventIDs())
		s.Equal(2, a.Count)
	})

	s.Run("failed high alone is high", func() {
		a, ok := alert.ForBatch([]audit.Event{{ID: "c", Severity: audit.SeverityHigh}}, now)
		s.Require().True(ok)
		s.Equal(audit.SeverityHigh, a.Severity)
	})
}
