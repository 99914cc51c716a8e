// Command hivemind runs the shared memory service for cooperating agents.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hivemind-db/hivemind/internal/channels"
	"github.com/hivemind-db/hivemind/internal/config"
	"github.com/hivemind-db/hivemind/internal/embeddings"
	"github.com/hivemind-db/hivemind/internal/engine"
	"github.com/hivemind-db/hivemind/internal/extraction"
	"github.com/hivemind-db/hivemind/internal/logging"
	"github.com/hivemind-db/hivemind/internal/replication"
	"github.com/hivemind-db/hivemind/internal/server"
	"github.com/hivemind-db/hivemind/internal/snapshot"
)

var version = "0.3.0"

var logLevel string

func main() {
	rootCmd := &cobra.Command{
		Use:   "hivemind",
		Short: "Shared memory service for cooperating agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd)
		},
		SilenceUsage: true,
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.String("listen", config.DefaultListenAddr, "listen address")
	flags.String("data-dir", config.DefaultDataDir, "snapshot directory")
	flags.Duration("snapshot-interval", config.DefaultSnapshotInterval, "periodic snapshot interval (0 disables)")
	flags.Bool("replication", false, "enable websocket replication")
	flags.String("replication-url", config.DefaultReplicationURL, "replication sink URL")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the service (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd)
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("hivemind " + version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(cmd *cobra.Command) error {
	log := logging.New(logging.ParseLevel(logLevel))
	slog.SetDefault(log)

	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		log.Error("invalid configuration", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := channels.NewHub(log)

	var embedder embeddings.Embedder
	if oe, err := embeddings.NewOpenAIEmbedder(embeddings.ProviderConfig{
		Spec:   cfg.EmbeddingModel,
		APIKey: cfg.EmbeddingAPIKey,
	}); err != nil {
		log.Warn("embedding provider disabled", "error", err)
	} else {
		embedder = oe
	}
	index := embeddings.NewIndex(embedder, log)

	var queue *replication.Queue
	var emitter *replication.Emitter
	var sink engine.ReplicationSink
	if cfg.ReplicationEnabled {
		queue = replication.NewQueue()
		emitter = replication.NewEmitter(queue, cfg.ReplicationURL, log)
		sink = queue
	}

	eng := engine.New(hub, index, sink, log)
	eng.SetExtractor(extraction.New(extraction.Config{
		Provider: cfg.LLMProvider,
		APIKey:   cfg.LLMAPIKey,
		Model:    cfg.LLMModel,
	}, log))

	snapMgr := snapshot.NewManager(cfg.DataDir)
	snap, err := snapMgr.Load()
	if err != nil {
		log.Error("snapshot load failed", "path", snapMgr.Path(), "error", err)
		return err
	}
	if snap != nil {
		snapshot.Apply(snap, eng, hub)
		log.Info("snapshot restored", "path", snapMgr.Path(),
			"version", snap.Version, "memories", len(snap.Memories), "tasks", len(snap.Tasks))
	}

	srv := server.New(eng, cfg.ListenAddr, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		snapMgr.Run(gctx, eng, hub, cfg.SnapshotInterval, log)
		return nil
	})
	if emitter != nil {
		g.Go(func() error {
			return emitter.Run(gctx)
		})
	}

	log.Info("hivemind started",
		"version", version,
		"listen", cfg.ListenAddr,
		"data_dir", cfg.DataDir,
		"snapshot_interval", cfg.SnapshotInterval,
		"replication", cfg.ReplicationEnabled,
		"embeddings", index.Available())

	if err := g.Wait(); err != nil {
		log.Error("service failed", "error", err)
		return err
	}
	log.Info("hivemind stopped")
	return nil
}
