package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-directory-go/internal/app"
	"github.com/ovaphlow/pitchfork/service-directory-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-directory-go/internal/lead"
	"github.com/ovaphlow/pitchfork/service-directory-go/internal/provider"
	"github.com/ovaphlow/pitchfork/service-directory-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-directory-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-directory-go/pkg/utilities"
)

func main() {
	// best-effort: a missing .env falls back to the real environment
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-directory")

	db, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(db, sugar)
	if err != nil {
		sugar.Fatalf("init: %v", err)
	}
	defer a.Close()

	if err := a.Migrate(ctx); err != nil {
		sugar.Fatalf("migrate: %v", err)
	}

	rcfg := router.ConfigFromEnv()
	handler := router.RegisterRoutes(rcfg, router.Deps{
		Auth:      auth.NewHandler(a.AuthCfg, a.Auth, a.Tokens, sugar),
		Gate:      a.Gate,
		Leads:     lead.NewHandler(a.LeadSvc, sugar),
		Providers: provider.NewHandler(a.Dashboard, sugar),
		Ready:     func(r *http.Request) error { return db.PingContext(r.Context()) },
	}, sugar)

	srv := &http.Server{
		Addr:              rcfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infow("http server listening", "addr", rcfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
