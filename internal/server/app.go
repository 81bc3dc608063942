// Package server wires the identity core together: storage, session store,
// policy, external provider and the gRPC and HTTP transports. It handles
// graceful shutdown on SIGINT, SIGTERM and SIGQUIT.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/mailkeeper/internal/logging"
	"github.com/dmitrijs2005/mailkeeper/internal/server/captcha"
	"github.com/dmitrijs2005/mailkeeper/internal/server/clientip"
	"github.com/dmitrijs2005/mailkeeper/internal/server/config"
	"github.com/dmitrijs2005/mailkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/mailkeeper/internal/server/oauth"
	"github.com/dmitrijs2005/mailkeeper/internal/server/policy"
	"github.com/dmitrijs2005/mailkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/mailkeeper/internal/server/services"
	"github.com/dmitrijs2005/mailkeeper/internal/server/sessions"
	"github.com/dmitrijs2005/mailkeeper/internal/timex"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/mailkeeper/internal/server/grpc"
)

type App struct {
	config       *config.Config
	logger       logging.Logger
	db           *sql.DB
	redis        *redis.Client
	clientIPs    *clientip.Resolver
	registration *services.RegistrationService
	userService  *services.UserService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	ips, err := clientip.NewResolver(c.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("client ip: %w", err)
	}

	loc, err := timex.LoadZone(c.BusinessTimeZone)
	if err != nil {
		return nil, fmt.Errorf("time zone: %w", err)
	}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		db.Close()
		rdb.Close()
		return nil, fmt.Errorf("redis ping error: %w", err)
	}

	pol := policy.NewProvider(rm.Settings(db), c.Domains, logger)
	if _, err := pol.Refresh(ctx); err != nil {
		logger.Warn(ctx, "initial settings load failed, retrying on first use", "error", err)
	}

	sm := sessions.NewManager(sessions.NewRedisStore(rdb, c.SessionTTL), logger)
	verifier := captcha.NewTurnstile(c.TurnstileSecret, c.TurnstileVerifyURL, nil, logger)
	provider := oauth.NewProvider(oauth.Config{
		Name:         c.OAuthProvider,
		ClientID:     c.OAuthClientID,
		ClientSecret: c.OAuthClientSecret,
		AuthURL:      c.OAuthAuthURL,
		TokenURL:     c.OAuthTokenURL,
		UserInfoURL:  c.OAuthUserInfoURL,
		AvatarBase:   c.OAuthAvatarBase,
	}, nil, logger)

	reg := services.NewRegistrationService(db, rm, pol, verifier, loc, logger)
	identity := services.NewIdentityService(db, rm, pol, c.OAuthProvider, c.OAuthEmailPrefix, logger)
	us := services.NewUserService(db, rm, sm, identity, provider, pol, c, logger)

	return &App{config: c, logger: logger, db: db, redis: rdb, clientIPs: ips, registration: reg, userService: us}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.registration, app.userService, app.clientIPs)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "gRPC server failed", "error", err)
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	h := httpapi.NewHandler(app.registration, app.userService, app.clientIPs, app.logger)
	s := httpapi.NewServer(app.config.EndpointAddrHTTP, httpapi.NewRouter(h, app.config.CORSOrigins), app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "HTTP server failed", "error", err)
		cancelFunc()
	}
}

// Run serves both transports until a signal arrives or one of them fails.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.redis.Close(); err != nil {
		app.logger.Error(ctx, "redis close failed", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close failed", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
}
