// Command coordinator runs the 2PC coordinator: it loads its participant
// roster from a clusterconfig document and drives prepare/commit/abort over
// HTTP against each of them.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mattwhoisj/raftpay/internal/clusterconfig"
	"github.com/mattwhoisj/raftpay/internal/coordinator"
	"github.com/mattwhoisj/raftpay/internal/journal"
	"github.com/mattwhoisj/raftpay/internal/logging"
	"github.com/mattwhoisj/raftpay/internal/participant"
	"github.com/mattwhoisj/raftpay/internal/transport"
)

var (
	configPath string
	dataDir    string
	verboseLog bool
)

func main() {
	root := &cobra.Command{
		Use:   "coordinator",
		Short: "Run the 2PC coordinator",
		RunE:  runCoordinator,
	}
	root.Flags().StringVar(&configPath, "config", "", "path to the coordinator config YAML file")
	root.Flags().StringVar(&dataDir, "data-dir", "", "directory for the durable transaction journal")
	root.Flags().BoolVar(&verboseLog, "verbose-requests", false, "log every RPC request at debug level")
	root.MarkFlagRequired("config")
	root.MarkFlagRequired("data-dir")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCoordinator(cmd *cobra.Command, args []string) error {
	sink := logging.New("coordinator", "coordinator")

	doc, err := clusterconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("coordinator: loading config: %w", err)
	}
	cfg := doc.Coordinator
	if cfg.Address == "" {
		return fmt.Errorf("coordinator: config has no coordinator.address")
	}
	if len(cfg.Participants) == 0 {
		return fmt.Errorf("coordinator: config has no coordinator.participants")
	}

	timeout := time.Duration(cfg.TimeoutSec * float64(time.Second))
	if timeout <= 0 {
		timeout = time.Second
	}
	rpcClient := transport.NewClient(timeout)

	participants := make([]coordinator.Participant, 0, len(cfg.Participants))
	for _, p := range cfg.Participants {
		participants = append(participants, coordinator.Participant{
			Account: p.Account,
			Client:  participant.NewHTTPClient(p.Address, rpcClient),
		})
	}

	j := journal.New(filepath.Join(dataDir, "journal.json"))
	c := coordinator.New(participants, timeout, j, sink)
	c.SetExitFunc(os.Exit)

	server := coordinator.NewServer(c, sink, verboseLog)
	httpServer := &http.Server{Addr: cfg.Address, Handler: server.Router}

	errCh := make(chan error, 1)
	go func() {
		sink.Info().Str("address", cfg.Address).Msg("coordinator listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("coordinator: serving: %w", err)
	case sig := <-sigCh:
		sink.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}
