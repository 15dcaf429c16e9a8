package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"fairplay/api"
	"fairplay/config"
	"fairplay/crypto"
	"fairplay/db"
	"fairplay/game"
	"fairplay/session"
	"fairplay/state"
	"fairplay/verify"
	"fairplay/ws"

	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("❌ Server error: %v", err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	tables, err := config.LoadTables(cfg.GameTablesFile)
	if err != nil {
		return err
	}
	engine, err := game.NewEngine(tables)
	if err != nil {
		return err
	}

	checks := map[string]api.HealthChecker{"postgres": nil, "redis": nil}

	// Without PostgreSQL commitments live in memory and die with the process
	var repo state.Repository
	if cfg.DatabaseURL != "" {
		pg, err := db.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		repo = pg
		checks["postgres"] = pg
	} else {
		log.Println("⚠️  Warning: DATABASE_URL not set, commitments are kept in memory only")
		repo = db.NewMemory()
	}

	storeOpts := []state.Option{state.WithNamespaces(cfg.Namespaces...), state.WithCache(db.NewLocalCache())}
	if cfg.RedisURL != "" {
		rdb, err := db.NewRedis(ctx, cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Printf("⚠️  Warning: Redis initialization failed: %v", err)
			log.Println("   Activation is serialized in this process only")
		} else {
			defer rdb.Close()
			storeOpts = []state.Option{state.WithNamespaces(cfg.Namespaces...), state.WithLocker(rdb), state.WithCache(rdb)}
			checks["redis"] = rdb
		}
	}

	signer, err := newSigner(cfg.ServerPrivateKey, cfg.DatabaseURL != "")
	if err != nil {
		return err
	}
	signerAddr := signer.Address()

	store := state.NewStore(repo, storeOpts...)
	if err := store.Bootstrap(ctx, cfg.Namespaces...); err != nil {
		return err
	}

	var sessions *session.Service
	hub := ws.NewHub(func(ctx context.Context, namespace string) (state.CommitmentView, error) {
		return sessions.CurrentPublicHash(ctx, namespace)
	})
	sessions = session.NewService(store, engine, session.Options{
		Signer: signer,
		Policy: session.Policy{
			MaxRounds: cfg.MaxRoundsPerCommitment,
			MaxAge:    cfg.MaxCommitmentAge,
		},
		Notifier: hub,
	})
	verifier := verify.NewService(store, engine, &signerAddr)

	router := api.NewRouter(cfg.CORSOrigins)
	api.NewServer(sessions, verifier, checks).Routes(router)
	router.Get("/ws", hub.HandleWS)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return sessions.RunRotation(ctx, cfg.Namespaces, cfg.RotationCheckInterval) })
	g.Go(func() error {
		logEndpoints(cfg.HTTPAddr, signerAddr.Hex())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Println("🛑 Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newSigner loads the receipt key. Stored rounds outlive the process, so a
// durable store needs a fixed key or every restart breaks old signatures.
func newSigner(privateKeyHex string, durable bool) (*crypto.Signer, error) {
	if privateKeyHex != "" {
		return crypto.NewSigner(privateKeyHex)
	}
	if durable {
		return nil, errors.New("SERVER_PRIVATE_KEY is required when DATABASE_URL is set")
	}
	log.Println("⚠️  Warning: SERVER_PRIVATE_KEY not set, signing receipts with an ephemeral key")
	return crypto.NewEphemeralSigner()
}

func logEndpoints(addr, signer string) {
	log.Printf("🚀 Server starting on %s", addr)
	log.Printf("🔑 Receipts signed by %s", signer)
	log.Println("")
	log.Println("📡 WebSocket Endpoints:")
	log.Println("   /ws - subscribe to 'fair:<namespace>' for commitments and rounds")
	log.Println("")
	log.Println("🔌 API Endpoints:")
	log.Println("   POST /api/rounds - Play a round")
	log.Println("   GET  /api/rounds?namespace= - Recent rounds")
	log.Println("   GET  /api/rounds/:commitmentId/:sequence - Stored round")
	log.Println("   GET  /api/rounds/:commitmentId/:sequence/verify - Audit a revealed round")
	log.Println("   GET  /api/commitments/:namespace - Current public hash")
	log.Println("   GET  /api/commitments/:namespace/revealed - Revealed secrets")
	log.Println("   POST /api/commitments/:namespace/rotate - Retire and reveal")
	log.Println("   POST /api/verify - Verify a round with its secret")
	log.Println("   GET  /api/games - Game tables")
	log.Println("   GET  /api/health - Health check (Redis + PostgreSQL)")
	log.Println("")
}
