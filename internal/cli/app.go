package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
	"github.com/nickimizell/property-dashboard-sub000/internal/actions"
	"github.com/nickimizell/property-dashboard-sub000/internal/api"
	"github.com/nickimizell/property-dashboard-sub000/internal/archive"
	"github.com/nickimizell/property-dashboard-sub000/internal/config"
	"github.com/nickimizell/property-dashboard-sub000/internal/extraction"
	"github.com/nickimizell/property-dashboard-sub000/internal/mailsource"
	"github.com/nickimizell/property-dashboard-sub000/internal/matching"
	"github.com/nickimizell/property-dashboard-sub000/internal/oracle"
	"github.com/nickimizell/property-dashboard-sub000/internal/pipeline"
	"github.com/nickimizell/property-dashboard-sub000/internal/pkg/distlock"
	"github.com/nickimizell/property-dashboard-sub000/internal/pkg/httpretry"
	"github.com/nickimizell/property-dashboard-sub000/internal/pkg/logger"
	"github.com/nickimizell/property-dashboard-sub000/internal/pkg/ratelimit"
	"github.com/nickimizell/property-dashboard-sub000/internal/repository/postgres"
	"github.com/nickimizell/property-dashboard-sub000/internal/splitter"
	"github.com/redis/go-redis/v9"
)

const (
	batchLockKey   = "propertyd:batch"
	oracleBudgetID = "oracle"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg     *config.Config
	db      *sql.DB
	redis   *redis.Client
	gateway *oracle.Gateway
	archive *archive.S3Archive
	spool   *mailsource.Spool
	records *postgres.RecordRepo
	orch    *pipeline.Orchestrator
	runner  *pipeline.Runner
}

func openDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database url is not set (DATABASE_URL)")
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime())

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	log.Println("Connected to PostgreSQL database")
	return db, nil
}

// openRedis returns nil when no Redis URL is configured.
func openRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	log.Println("Connected to Redis")
	return client, nil
}

// newLimiter shares the call budget through Redis when asked to and a
// client is available, and keeps it in-process otherwise.
func newLimiter(cfg config.OracleConfig, rdb *redis.Client) ratelimit.Limiter {
	if cfg.DistributedBudget && rdb != nil {
		return ratelimit.NewRedisWindow(rdb, oracleBudgetID, cfg.CallsPerWindow, cfg.Window())
	}
	if cfg.DistributedBudget {
		logger.Warn("distributed oracle budget requested without redis, using in-process window")
	}
	return ratelimit.NewSlidingWindow(cfg.CallsPerWindow, cfg.Window())
}

// newGateway never fails: a provider that cannot be built leaves the
// gateway unavailable and the pipeline on keyword heuristics.
func newGateway(ctx context.Context, cfg config.OracleConfig, rdb *redis.Client) *oracle.Gateway {
	provider, err := oracle.NewProvider(ctx, cfg)
	if err != nil {
		logger.Warn("oracle provider not configured", "error", err)
		provider = nil
	}
	return oracle.NewGateway(provider, newLimiter(cfg, rdb), cfg.Timeout()).
		WithRetries(cfg.MaxRetries, httpretry.DefaultBackoff())
}

// newSplitter builds the extraction ladder and the splitter over it.
// A gateway without a provider gives the splitter no oracle at all.
func newSplitter(cfg *config.Config, gw *oracle.Gateway) *splitter.Splitter {
	var o splitter.Oracle
	if gw != nil && gw.Available() {
		o = gw
	}
	return splitter.New(extraction.New(cfg.Extraction), splitter.NewPDFCPU(), o, cfg.Splitter)
}

// newApp connects every dependency and wires the pipeline.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := openDB(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	rdb, err := openRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, continuing without it", "error", err)
		rdb = nil
	}
	arc, err := archive.NewFromConfig(ctx, cfg.Archive)
	if err != nil {
		db.Close()
		if rdb != nil {
			rdb.Close()
		}
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		db:      db,
		redis:   rdb,
		gateway: newGateway(ctx, cfg.Oracle, rdb),
		archive: arc,
		spool:   mailsource.NewSpool(cfg.MailSource.SpoolDir),
		records: postgres.NewRecordRepo(db),
	}

	deps := pipeline.Deps{
		Records:   a.records,
		Documents: postgres.NewDocumentRepo(db),
		Actions:   postgres.NewActionRepo(db),
		Oracle:    a.gateway,
		Extractor: newSplitter(cfg, a.gateway),
		Matcher:   matching.New(postgres.NewPropertyRepo(db), cfg.Matching),
		Generator: actions.NewGenerator(),
		Mail:      a.spool,
		Stats:     pipeline.NewStats(),
	}
	if arc != nil {
		deps.Archive = arc
	}
	a.orch = pipeline.NewOrchestrator(deps, cfg.Pipeline)

	lock := distlock.NewLock(rdb, db, batchLockKey, cfg.Pipeline.LockTTL())
	a.runner = pipeline.NewRunner(a.orch, a.spool, lock, cfg.Pipeline)
	return a, nil
}

// probes lists the health checks for the status server. The database and
// the mail source are critical; the rest only degrade the service.
func (a *app) probes() []api.Probe {
	probes := []api.Probe{
		{Name: "database", Critical: true, Ping: a.db.PingContext},
		{Name: "mail_source", Critical: true, Ping: a.spool.Ping},
		{Name: "oracle", Timeout: 10 * time.Second},
		{Name: "redis"},
		{Name: "archive"},
	}
	if a.gateway.Available() {
		probes[2].Ping = a.gateway.Ping
	}
	if a.redis != nil {
		rdb := a.redis
		probes[3].Ping = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	if a.archive != nil {
		probes[4].Ping = a.archive.Ping
	}
	return probes
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	a.db.Close()
}
