package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/SinaHo/phone-referral-auth/internal/metrics"
)

// Store is the part of the profile repository the maintenance jobs use.
type Store interface {
	ClearExpiredCodes(ctx context.Context, issuedBefore time.Time) (int64, error)
	Ping(ctx context.Context) error
}

// HealthSetter is satisfied by *health.Server.
type HealthSetter interface {
	SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus)
}

type Options struct {
	// CodeTTL is the verification code lifetime. Zero disables the cleanup job.
	CodeTTL         time.Duration
	CleanupInterval time.Duration
	HealthInterval  time.Duration
	// Health receives the database status for the overall ("") service. Optional.
	Health HealthSetter
	Logger *zap.SugaredLogger
	Now    func() time.Time
}

// Scheduler runs periodic maintenance: stale code cleanup and a database health probe.
type Scheduler struct {
	sched  gocron.Scheduler
	store  Store
	opts   Options
	logger *zap.SugaredLogger
}

func NewScheduler(store Store, opts Options) (*Scheduler, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	s := &Scheduler{sched: sched, store: store, opts: opts, logger: opts.Logger}

	if opts.CodeTTL > 0 && opts.CleanupInterval > 0 {
		if _, err := sched.NewJob(
			gocron.DurationJob(opts.CleanupInterval),
			gocron.NewTask(func() { s.ClearExpired(context.Background()) }),
			gocron.WithName("clear-expired-codes"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return nil, fmt.Errorf("schedule cleanup: %w", err)
		}
	}

	if opts.HealthInterval > 0 {
		if _, err := sched.NewJob(
			gocron.DurationJob(opts.HealthInterval),
			gocron.NewTask(func() { s.CheckHealth(context.Background()) }),
			gocron.WithName("database-health"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		); err != nil {
			return nil, fmt.Errorf("schedule health check: %w", err)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
	s.logger.Infow("Scheduler started", "jobs", len(s.sched.Jobs()))
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}

// ClearExpired wipes verification codes issued more than CodeTTL ago.
func (s *Scheduler) ClearExpired(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	n, err := s.store.ClearExpiredCodes(ctx, s.opts.Now().UTC().Add(-s.opts.CodeTTL))
	if err != nil {
		s.logger.Errorw("[Scheduler] clearing expired codes failed", "error", err)
		return 0
	}
	if n > 0 {
		metrics.ExpiredCodesCleared.Add(float64(n))
		s.logger.Infow("[Scheduler] cleared expired verification codes", "count", n)
	}
	return n
}

// CheckHealth pings the database and publishes the result to the gRPC health service.
func (s *Scheduler) CheckHealth(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ok := true
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warnw("[Scheduler] database ping failed", "error", err)
		ok = false
	}
	if s.opts.Health != nil {
		status := healthpb.HealthCheckResponse_SERVING
		if !ok {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		s.opts.Health.SetServingStatus("", status)
	}
	return ok
}
