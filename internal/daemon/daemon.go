package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/clawchain/clawmarket/internal/api"
	"github.com/clawchain/clawmarket/internal/domain"
	"github.com/clawchain/clawmarket/internal/health"
	"github.com/clawchain/clawmarket/internal/infra/events"
	"github.com/clawchain/clawmarket/internal/infra/sqlite"
	"github.com/clawchain/clawmarket/internal/node"
	"github.com/clawchain/clawmarket/internal/security"
)

// Daemon is the clawmarket node runtime. It wires together all services.
type Daemon struct {
	Config Config
	Home   string
	DB     *sqlite.DB
	Node   *node.Node
	Hub    *events.Hub
	Kafka  *events.KafkaPublisher
	Key    *security.Keypair
	Health *health.Checker
	Server *api.Server

	logFile *os.File
	cancel  context.CancelFunc
}

// New creates and initializes a Daemon from the on-disk configuration.
func New(version string) (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg, Home(), version)
}

// NewWithConfig creates a Daemon with the given configuration, storing
// its journal under home.
func NewWithConfig(cfg Config, home, version string) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Daemon{Config: cfg, Home: home}

	if err := d.setupLogging(); err != nil {
		return nil, err
	}

	genesis, err := d.loadGenesis()
	if err != nil {
		d.Close()
		return nil, err
	}

	kp, err := security.LoadOrCreateKeypair(home)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("node key: %w", err)
	}
	d.Key = kp
	if d.Config.Node.ID == "" {
		d.Config.Node.ID = kp.NodeID()
	}
	cfg = d.Config

	db, err := sqlite.Open(home)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	d.DB = db

	// Live event fan-out; Kafka is optional.
	d.Hub = events.NewHub(cfg.Events.SSEBuffer)
	pubs := events.Multi{d.Hub}
	var kafkaGuard *events.Guarded
	if cfg.Events.KafkaBrokers != "" {
		kafka, err := events.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("kafka: %w", err)
		}
		kafka.SetSigner(kp)
		d.Kafka = kafka
		kafkaGuard = events.Guard("kafka", kafka, events.DefaultBreakerConfig())
		pubs = append(pubs, kafkaGuard)
		log.Printf("[daemon] publishing signed events to kafka topic %q", cfg.Events.KafkaTopic)
	}

	nodeCfg := node.DefaultConfig()
	nodeCfg.Market = cfg.Market
	nodeCfg.Reputation = cfg.Reputation

	n, err := node.Open(nodeCfg, db, genesis, pubs)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("open node: %w", err)
	}
	d.Node = n
	_ = db.SetNodeInfo("node_id", cfg.Node.ID)
	_ = db.SetNodeInfo("version", version)

	d.Health = health.NewChecker(db, home, n)
	d.Health.AddCheck(health.Check{
		Name:    "journal",
		CheckFn: func(context.Context) error { return n.Halted() },
	})
	if kafkaGuard != nil {
		d.Health.AddCheck(health.Check{Name: "kafka", CheckFn: kafkaGuard.Check})
	}

	srv := api.NewServer(n, api.AuthConfig{
		JWTSecret:   cfg.API.JWTSecret,
		RootAccount: domain.AccountID(cfg.Node.RootAccount),
		DevAuth:     cfg.Node.DevAuth,
	})
	srv.SetIdentity(cfg.Node.ID, version)
	srv.SetHub(d.Hub)
	srv.SetHealth(d.Health)
	srv.SetCORSOrigins(cfg.API.CORSOrigins)
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}
	if cfg.Logging.Level == "debug" {
		srv.EnableRequestLog()
	}
	d.Server = srv

	if cfg.Node.DevAuth {
		log.Printf("[daemon] WARNING: dev_auth is on, X-Account headers are trusted")
	}
	log.Printf("[daemon] node %s (key %s) ready at seq %d", cfg.Node.ID, kp.PublicKeyHex(), n.Seq())
	return d, nil
}

// loadGenesis reads the configured genesis file, or falls back to the
// development endowments. A relative path is resolved against the home dir.
func (d *Daemon) loadGenesis() (node.Genesis, error) {
	path := d.Config.GenesisFile
	if path == "" {
		log.Printf("[daemon] no genesis_file configured, using dev genesis")
		return node.DevGenesis(), nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(d.Home, path)
	}
	g, err := node.LoadGenesis(path)
	if err != nil {
		return node.Genesis{}, fmt.Errorf("genesis: %w", err)
	}
	return g, nil
}

func (d *Daemon) setupLogging() error {
	if d.Config.Logging.File == "" {
		return nil
	}
	path := d.Config.Logging.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(d.Home, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	d.logFile = f
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return nil
}

// Addr is the host:port the API listens on.
func (d *Daemon) Addr() string {
	return fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.Health.Run(ctx)

	addr := d.Addr()
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams stay open
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			log.Printf("[daemon] shutting down")
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	fmt.Printf("clawmarket serving on http://%s\n", addr)
	if d.Kafka != nil {
		fmt.Printf("  Events: kafka %s (topic %s)\n", d.Config.Events.KafkaBrokers, d.Config.Events.KafkaTopic)
	}
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}

	err := httpServer.ListenAndServe()
	d.Close()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Kafka != nil {
		if err := d.Kafka.Close(); err != nil {
			log.Printf("[daemon] kafka close: %v", err)
		}
		d.Kafka = nil
	}
	if d.DB != nil {
		_ = d.DB.Close()
		d.DB = nil
	}
	if d.logFile != nil {
		log.SetOutput(os.Stderr)
		_ = d.logFile.Close()
		d.logFile = nil
	}
}
