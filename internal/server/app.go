package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/SinaHo/phone-referral-auth/internal/config"
	"github.com/SinaHo/phone-referral-auth/internal/notify"
	"github.com/SinaHo/phone-referral-auth/internal/ratelimit"
	"github.com/SinaHo/phone-referral-auth/internal/repository"
	"github.com/SinaHo/phone-referral-auth/internal/service"
	"github.com/SinaHo/phone-referral-auth/internal/token"
	"github.com/SinaHo/phone-referral-auth/internal/worker"
)

type AppServer struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *sqlx.DB
	rdb       *redis.Client
	scheduler *worker.Scheduler
	health    *health.Server

	HTTP *fiber.App
	GRPC *grpc.Server
}

func NewAppServer(cfg *config.Config, logger *zap.Logger) (*AppServer, error) {
	sugar := logger.Sugar()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// PostgreSQL (via sqlx)
	db, err := repository.Connect(ctx, cfg.Postgres.DSN())
	if err != nil {
		sugar.Errorf("failed to connect to postgres: %v", err)
		return nil, err
	}
	if cfg.Postgres.AutoSchema {
		if err := repository.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	// Redis backs the login/verify rate limiters; without it they are disabled.
	loginLimiter, verifyLimiter := ratelimit.Noop(), ratelimit.Noop()
	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			sugar.Errorf("failed to ping redis: %v", err)
			db.Close()
			rdb.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		loginLimiter = ratelimit.NewRedisLimiter(rdb, "login", cfg.Auth.LoginLimit, cfg.Auth.LimitWindow)
		verifyLimiter = ratelimit.NewRedisLimiter(rdb, "verify", cfg.Auth.VerifyLimit, cfg.Auth.LimitWindow)
	} else {
		sugar.Warn("redis not configured, rate limiting disabled")
	}

	// Repository → Service → Handler
	profileRepo := repository.NewProfileRepository(db)
	tokens := token.NewManager([]byte(cfg.JWT.SigningKey), cfg.JWT.TokenTTL)
	notifier := notify.NewLogNotifier(sugar)

	authSvc := service.NewAuthService(profileRepo, tokens, service.AuthOptions{
		CodeTTL:       cfg.Auth.CodeTTL,
		AdminPhones:   cfg.Auth.AdminPhones,
		LoginLimiter:  loginLimiter,
		VerifyLimiter: verifyLimiter,
		Notifier:      notifier,
		Logger:        sugar,
	})
	profileSvc := service.NewProfileService(profileRepo, service.ProfileOptions{
		AdminPhones: cfg.Auth.AdminPhones,
		Notifier:    notifier,
		Logger:      sugar,
	})

	httpApp := NewHTTPApp(HTTPDeps{
		Auth:         authSvc,
		Profiles:     profileSvc,
		Tokens:       tokens,
		Ping:         profileRepo.Ping,
		AllowOrigins: cfg.Server.AllowOrigins,
		Logger:       sugar,
	})

	healthSrv := health.NewServer()
	grpcServer := NewGRPCServer(sugar, healthSrv)

	sched, err := worker.NewScheduler(profileRepo, worker.Options{
		CodeTTL:         cfg.Auth.CodeTTL,
		CleanupInterval: cfg.Scheduler.CleanupInterval,
		HealthInterval:  cfg.Scheduler.HealthInterval,
		Health:          healthSrv,
		Logger:          sugar,
	})
	if err != nil {
		db.Close()
		if rdb != nil {
			rdb.Close()
		}
		return nil, err
	}

	sugar.Infof("AppServer initialized successfully")
	return &AppServer{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		rdb:       rdb,
		scheduler: sched,
		health:    healthSrv,
		HTTP:      httpApp,
		GRPC:      grpcServer,
	}, nil
}

// Run starts the scheduler and both listeners. It returns when either listener fails.
func (a *AppServer) Run() error {
	sugar := a.logger.Sugar()

	grpcAddr := fmt.Sprintf(":%d", a.cfg.Server.GRPCPort)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		sugar.Errorf("listen error on %s: %v", grpcAddr, err)
		return fmt.Errorf("listen: %w", err)
	}

	a.scheduler.Start()

	errCh := make(chan error, 2)
	go func() {
		sugar.Infof("gRPC server listening on %s", grpcAddr)
		if err := a.GRPC.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc serve: %w", err)
		}
	}()
	go func() {
		httpAddr := fmt.Sprintf(":%d", a.cfg.Server.HTTPPort)
		sugar.Infof("HTTP server listening on %s", httpAddr)
		if err := a.HTTP.Listen(httpAddr); err != nil {
			errCh <- fmt.Errorf("http listen: %w", err)
		}
	}()
	return <-errCh
}

func (a *AppServer) GracefulStop() {
	sugar := a.logger.Sugar()
	sugar.Info("Shutting down servers gracefully")

	a.health.Shutdown()
	if err := a.HTTP.ShutdownWithTimeout(10 * time.Second); err != nil {
		sugar.Warnw("http shutdown", "error", err)
	}
	a.GRPC.GracefulStop()
	if err := a.scheduler.Shutdown(); err != nil {
		sugar.Warnw("scheduler shutdown", "error", err)
	}

	a.db.Close()
	if a.rdb != nil {
		a.rdb.Close()
	}
	sugar.Info("Resources closed, server stopped")
}
