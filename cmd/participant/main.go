// Command participant runs one 2PC participant node: it owns a single
// account's durable balance and answers Prepare/Commit/Abort over HTTP.
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

	"github.com/mattwhoisj/raftpay/internal/accountstore"
	"github.com/mattwhoisj/raftpay/internal/logging"
	"github.com/mattwhoisj/raftpay/internal/participant"
)

var (
	account        string
	listenAddress  string
	dataDir        string
	initialBalance float64
	sleepBeyond    time.Duration
	verboseLog     bool
)

func main() {
	root := &cobra.Command{
		Use:   "participant",
		Short: "Run one 2PC participant node",
		RunE:  runParticipant,
	}
	root.Flags().StringVar(&account, "account", "", "name of the account this node owns")
	root.Flags().StringVar(&listenAddress, "listen", "", "address to listen on, e.g. :8081")
	root.Flags().StringVar(&dataDir, "data-dir", "", "directory for this account's durable balance file")
	root.Flags().Float64Var(&initialBalance, "initial-balance", 0, "balance to seed the account with if its durable file does not yet exist")
	root.Flags().DurationVar(&sleepBeyond, "crash-sleep", 2*time.Second, "how long an armed crash scenario sleeps, must exceed the coordinator's per-call timeout")
	root.Flags().BoolVar(&verboseLog, "verbose-requests", false, "log every RPC request at debug level")
	root.MarkFlagRequired("account")
	root.MarkFlagRequired("listen")
	root.MarkFlagRequired("data-dir")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runParticipant(cmd *cobra.Command, args []string) error {
	sink := logging.New("participant", account)

	path := filepath.Join(dataDir, account+"_account.json")
	store := accountstore.New(path, initialBalance)
	if err := store.EnsureInitialized(); err != nil {
		return fmt.Errorf("participant: initializing account store: %w", err)
	}

	node := participant.New(account, store, sleepBeyond, sink)
	server := participant.NewServer(node, sink, verboseLog)
	httpServer := &http.Server{Addr: listenAddress, Handler: server.Router}

	errCh := make(chan error, 1)
	go func() {
		sink.Info().Str("address", listenAddress).Str("account", account).Msg("participant listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("participant: serving: %w", err)
	case sig := <-sigCh:
		sink.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}
