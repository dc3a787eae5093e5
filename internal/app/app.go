package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/cometab/internal/catalog"
	"github.com/hitoshi/cometab/internal/click"
	"github.com/hitoshi/cometab/internal/config"
	"github.com/hitoshi/cometab/internal/database"
	"github.com/hitoshi/cometab/internal/experiment"
	"github.com/hitoshi/cometab/internal/handler"
	"github.com/hitoshi/cometab/internal/landing"
	"github.com/hitoshi/cometab/internal/logger"
	"github.com/hitoshi/cometab/internal/metrics"
	"github.com/hitoshi/cometab/internal/middleware"
	"github.com/hitoshi/cometab/internal/reporter"
	"github.com/hitoshi/cometab/internal/repository"
	"github.com/hitoshi/cometab/internal/security"
	"github.com/hitoshi/cometab/internal/stats"
	"github.com/hitoshi/cometab/internal/user"
	"github.com/hitoshi/cometab/internal/worker/refresh"
)

const (
	dbPingTimeout   = 5 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから、modeに応じた設定を環境変数から読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer, mode config.Mode) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load(mode)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		return runHealthcheck(healthcheckPort(args))
	}

	mode := config.ModeBackend
	if cmd == CommandLanding {
		mode = config.ModeLanding
	}

	cfg, err := Init(w, mode)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("experiment", cfg.ExperimentName),
	)

	switch cmd {
	case CommandLanding:
		return runLanding(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// newRegistry はGo runtimeとプロセスのメトリクスを含むレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(context.Background(), db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	limiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitPerMinute))
	defer limiter.Stop()

	router := newBackendRouter(cfg, db, reg, collector, limiter)

	return serveUntilSignal(newHTTPServer(cfg.ServerPort, router), "API server")
}

// newBackendRouter はリポジトリ・サービス・ハンドラーを組み立ててAPIルーターを返す。
func newBackendRouter(cfg *config.Config, db *sql.DB, reg *prometheus.Registry, collector *metrics.Collector, limiter *middleware.RateLimiter) http.Handler {
	// リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	groupRepo := repository.NewPostgresGroupRepo(db)
	clickRepo := repository.NewPostgresClickRepo(db)

	// ドメインサービス
	userService := user.NewService(userRepo, groupRepo, security.NewInputSanitizer())
	clickService := click.NewService(clickRepo, userRepo, groupRepo, collector)
	statsService := stats.NewService(groupRepo, clickRepo, userRepo)

	return handler.NewRouter(&handler.RouterDeps{
		Logger:             slog.Default(),
		Statuses:           collector,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        limiter,
		Gatherer:           reg,

		DB:           db,
		UserService:  userService,
		ClickService: clickService,
		StatsService: statsService,
	})
}

// landingApp はランディングページサーバーの構成要素。
type landingApp struct {
	router  http.Handler
	tracker *landing.AsyncTracker
	redis   *redis.Client
}

// Close は保持している外部接続を閉じる。
func (a *landingApp) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}

// newLandingApp はカタログ・レポーター・割り当て保存先を組み立ててランディングページのルーターを返す。
// ASSIGNMENT_STORE=redisの場合はRedisへの疎通を確認する。
func newLandingApp(ctx context.Context, cfg *config.Config, reg *prometheus.Registry, collector *metrics.Collector) (*landingApp, error) {
	variants, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load variant catalog: %w", err)
	}

	opts := []reporter.Option{
		reporter.WithDiagnostics(reporter.NewDiagnostics(slog.Default(), collector)),
	}
	if cfg.GroupResolution == config.GroupResolutionLookup {
		opts = append(opts, reporter.WithLookupGroupResolver())
	}
	client := reporter.NewClient(cfg.BackendURL, &http.Client{Timeout: cfg.ReporterTimeout}, slog.Default(), opts...)

	app := &landingApp{}

	cookieOpts := experiment.CookieOptions{Domain: cfg.CookieDomain, Secure: cfg.CookieSecure}
	persistence := landing.CookiePersistenceFactory(cookieOpts)
	if cfg.AssignmentStore == config.AssignmentStoreRedis {
		rdb, err := experiment.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		app.redis = rdb
		persistence = landing.RedisPersistenceFactory(experiment.NewRedisBackend(rdb), cookieOpts)
	}

	app.tracker = landing.NewAsyncTracker(0, slog.Default(), collector)

	h, err := landing.NewHandler(landing.HandlerDeps{
		Persistence:  persistence,
		StoreOptions: experiment.StoreOptions{SplitRatio: cfg.SplitRatio},
		Reporter:     client,
		Tracker:      app.tracker,
		Variants:     variants,
		Sanitizer:    security.NewInputSanitizer(),
		Signups:      collector,
		Settings: landing.Settings{
			ExperimentName:         cfg.ExperimentName,
			PlaceholderEmailDomain: cfg.PlaceholderEmailDomain,
		},
		Logger: slog.Default(),
	})
	if err != nil {
		app.Close()
		return nil, err
	}

	app.router = landing.NewRouter(landing.RouterDeps{
		Handler:    h,
		CSRFConfig: middleware.CSRFConfig{CookieSecure: cfg.CookieSecure, CookieDomain: cfg.CookieDomain},
		Logger:     slog.Default(),
		Statuses:   collector,
		Gatherer:   reg,
	})
	return app, nil
}

// runLanding はランディングページサーバーモードで起動する。
// 停止時は割り当て通知のキューを処理し終えてから終了する。
func runLanding(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	app, err := newLandingApp(ctx, cfg, reg, collector)
	if err != nil {
		return err
	}
	defer app.Close()

	slog.Info("landing page configured",
		slog.String("backend_url", cfg.BackendURL),
		slog.String("assignment_store", cfg.AssignmentStore),
		slog.String("group_resolution", cfg.GroupResolution),
		slog.Float64("split_ratio", cfg.SplitRatio),
	)

	app.tracker.Start(ctx)

	err = serveUntilSignal(newHTTPServer(cfg.LandingPort, app.router), "landing server")

	cancel()
	app.tracker.Wait()
	return err
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、集計ゲージを定期更新する。/metricsはSERVER_PORTで公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	statsService := stats.NewService(
		repository.NewPostgresGroupRepo(db),
		repository.NewPostgresClickRepo(db),
		repository.NewPostgresUserRepo(db),
	)
	job := refresh.NewJob(statsService, collector, slog.Default())
	job.Interval = cfg.StatsInterval

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	go func() {
		select {
		case <-stop:
			slog.Info("shutting down worker...")
			cancel()
		case <-ctx.Done():
		}
	}()

	metricsServer := newHTTPServer(cfg.ServerPort, metrics.SetupMetricsRoute(reg))
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()

	// 集計ジョブをメインgoroutineで実行（ブロッキング）
	job.Start(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// newHTTPServer はタイムアウトを設定したHTTPサーバーを生成する。
func newHTTPServer(port string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// serveUntilSignal はサーバーを起動し、SIGINTまたはSIGTERMを受信するとグレースフルシャットダウンする。
// 待ち受けに失敗した場合はそのエラーを返す。
func serveUntilSignal(server *http.Server, name string) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("%s listen error: %w", name, err)
	case <-stop:
	}

	slog.Info("shutting down " + name + "...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// healthcheckPort はヘルスチェック対象のポートを返す。
// 引数で指定がなければSERVER_PORT、それも無ければ8080。
func healthcheckPort(args []string) string {
	if len(args) > 1 && args[1] != "" {
		return args[1]
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		return port
	}
	return "8080"
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
