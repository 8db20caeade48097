package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nickimizell/property-dashboard-sub000/internal/api"
	"github.com/nickimizell/property-dashboard-sub000/internal/repository/postgres"
	"github.com/spf13/cobra"
)

// drainTimeout bounds how long in-flight emails get after a shutdown signal.
const drainTimeout = 2 * time.Minute

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Poll the mail source and serve the status API",
		Run:   runServe,
	}
	cmd.Flags().Bool("no-api", false, "Run the batch loop without the status server")
	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	noAPI, _ := cmd.Flags().GetBool("no-api")

	cfg, err := loadConfig()
	if err != nil {
		exitErr("config", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		exitErr("startup", err)
	}
	defer a.Close()

	if err := a.runner.Validate(ctx); err != nil {
		exitErr("validate", err)
	}

	runnerDone := make(chan error, 1)
	go func() { runnerDone <- a.runner.Run(ctx) }()

	var server *api.Server
	if !noAPI {
		handlers := api.NewHandlers(a.orch.Stats(), a.runner, a.records).
			WithProperties(postgres.NewDocumentRepo(a.db), postgres.NewActionRepo(a.db))
		server = api.NewServer(cfg.Server, handlers, api.NewHealthChecker(a.probes()...))
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[API] server error: %v", err)
			}
		}()
	}

	log.Println("propertyd running...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-runnerDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("runner exited: %v", err)
		}
		runnerDone <- err
	}

	log.Println("Shutting down propertyd...")
	a.runner.Stop()

	select {
	case <-runnerDone:
	case <-time.After(drainTimeout):
		log.Println("in-flight emails did not finish in time, cancelling")
		cancel()
		<-runnerDone
	}

	if server != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[API] shutdown: %v", err)
		}
	}

	log.Println("propertyd stopped")
}
