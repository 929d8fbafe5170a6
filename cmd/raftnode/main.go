// Command raftnode runs one member of a Raft cluster: it loads the named
// cluster's topology from a clusterconfig document, constructs a raft.Node
// bound to that topology, and serves its RPC surface over HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mattwhoisj/raftpay/internal/clusterconfig"
	"github.com/mattwhoisj/raftpay/internal/logging"
	"github.com/mattwhoisj/raftpay/internal/raft"
	"github.com/mattwhoisj/raftpay/internal/transport"
)

var (
	configPath  string
	clusterName string
	nodeName    string
	dataDir     string
	verboseLog  bool
)

func main() {
	root := &cobra.Command{
		Use:   "raftnode",
		Short: "Run one member of a Raft cluster",
		RunE:  runRaftNode,
	}
	root.Flags().StringVar(&configPath, "config", "", "path to the cluster config YAML file")
	root.Flags().StringVar(&clusterName, "cluster", "", "name of the Raft cluster in the config document")
	root.Flags().StringVar(&nodeName, "node", "", "this node's name within the cluster")
	root.Flags().StringVar(&dataDir, "data-dir", "", "directory for this node's durable log and term state")
	root.Flags().BoolVar(&verboseLog, "verbose-requests", false, "log every RPC request at debug level")
	root.MarkFlagRequired("config")
	root.MarkFlagRequired("cluster")
	root.MarkFlagRequired("node")
	root.MarkFlagRequired("data-dir")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runRaftNode(cmd *cobra.Command, args []string) error {
	sink := logging.New("raftnode", nodeName)

	doc, err := clusterconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("raftnode: loading config: %w", err)
	}
	peers, err := doc.Peers(clusterName, nodeName)
	if err != nil {
		return fmt.Errorf("raftnode: resolving peers: %w", err)
	}
	selfAddr, err := doc.SelfAddress(clusterName, nodeName)
	if err != nil {
		return fmt.Errorf("raftnode: resolving self address: %w", err)
	}

	cfg := raft.DefaultConfig()
	cfg.Name = nodeName
	cfg.ClusterName = clusterName
	cfg.ListenAddress = selfAddr
	cfg.Peers = peers
	cfg.DataDir = dataDir

	rpcClient := transport.NewClient(cfg.CallTimeout)
	peerClients := make(map[string]raft.PeerClient, len(peers))
	for name, addr := range peers {
		peerClients[name] = raft.NewHTTPPeerClient(addr, rpcClient)
	}

	node, err := raft.New(cfg, peerClients, nil, sink)
	if err != nil {
		return fmt.Errorf("raftnode: constructing node: %w", err)
	}
	node.Start()
	defer node.Stop()

	server := raft.NewServer(node, sink, verboseLog)
	httpServer := &http.Server{Addr: selfAddr, Handler: server.Router}

	errCh := make(chan error, 1)
	go func() {
		sink.Info().Str("address", selfAddr).Msg("raft node listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("raftnode: serving: %w", err)
	case sig := <-sigCh:
		sink.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}
