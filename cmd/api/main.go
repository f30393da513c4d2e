package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/campus-shop/internal/config"
	"github.com/ariefcatur/campus-shop/internal/httpx"
	kafkax "github.com/ariefcatur/campus-shop/internal/kafka"
	"github.com/ariefcatur/campus-shop/internal/logging"
	"github.com/ariefcatur/campus-shop/internal/memstore"
	"github.com/ariefcatur/campus-shop/internal/metrics"
	"github.com/ariefcatur/campus-shop/internal/orders"
	"github.com/ariefcatur/campus-shop/internal/postgres"
	"github.com/ariefcatur/campus-shop/internal/redisx"
	"github.com/ariefcatur/campus-shop/internal/tracing"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	log := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Setup(cfg.ServiceName, cfg.JaegerEndpoint)
	if err != nil {
		log.Error("tracing setup", "error", err)
		os.Exit(1)
	}

	// Store
	var store orders.Store
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		mem := memstore.New()
		seedDemoProducts(mem)
		store = mem
		log.Warn("using in-memory store, data is lost on restart")
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolConfig{MaxConns: cfg.PostgresMaxConns})
		if err != nil {
			log.Error("db connect", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Error("db migrate", "error", err)
			os.Exit(1)
		}
		store = postgres.NewStore(db)
	}

	// Redis (optional)
	oh := &httpx.OrdersHandler{Timeout: cfg.RequestTimeout}
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		oh.Cache = &redisx.OrderCache{RDB: rdb}
		oh.Idem = &redisx.Idempotency{RDB: rdb}
	}

	opts := []orders.Option{orders.WithLogger(log), orders.WithServiceName(cfg.ServiceName)}

	// Kafka producer (optional), topic dipilih per pesan
	var prod *kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, "", 1024)
		prod.Start(ctx)
		opts = append(opts, orders.WithPublisher(&kafkax.EventPublisher{Producer: prod}))
	}

	svc := orders.NewService(store, opts...)
	m := metrics.NewServerMetrics(cfg.ServiceName)
	oh.Service = svc
	oh.Metrics = m

	router := httpx.NewRouter(httpx.RouterOptions{
		Service:        cfg.ServiceName,
		Logger:         log,
		Metrics:        m,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Timeout:        2 * cfg.RequestTimeout,
	})
	oh.Register(router)
	(&httpx.ProductsHandler{Service: svc}).Register(router)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("HTTP listening", "addr", cfg.HTTPAddr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen", "error", err)
			os.Exit(1)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	if prod != nil {
		prod.Close() // tutup inbox -> flush & close writer
		prod.WaitClosed()
	}
	cancel()
	if err := shutdownTracing(ctx2); err != nil {
		log.Warn("tracing shutdown", "error", err)
	}
}

// seedDemoProducts fills the memory store so the API is usable without the
// product-management service.
func seedDemoProducts(s *memstore.Store) {
	now := time.Now().UTC()
	for _, p := range []orders.Product{
		{ID: "prod-notebook", Name: "Campus Notebook A5", Price: decimal.RequireFromString("25000"), Stock: 100},
		{ID: "prod-hoodie", Name: "Campus Hoodie", Price: decimal.RequireFromString("185000"), Stock: 20},
		{ID: "prod-tumbler", Name: "Steel Tumbler", Price: decimal.RequireFromString("75000"), Stock: 35},
	} {
		p.IsActive = true
		p.CreatedAt, p.UpdatedAt = now, now
		s.PutProduct(p)
	}
}
