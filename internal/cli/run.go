package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"peerscope/internal/admin"
	"peerscope/internal/config"
	"peerscope/internal/console"
	"peerscope/internal/discovery"
	"peerscope/internal/gossip"
	"peerscope/internal/identity"
	"peerscope/internal/node"
	"peerscope/internal/pprofutil"
	"peerscope/internal/proto"
	"peerscope/internal/transport"
)

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "Path to a TOML config file")
	runCmd.Flags().StringVar(&runDescription, "description", "", "Node description (overrides config)")
	runCmd.Flags().StringVar(&runListenAddr, "listen", "", "Gossip listen address (overrides config)")
	runCmd.Flags().IntVar(&runAdminPort, "admin-port", 0, "Admin HTTP port (overrides config)")
	runCmd.Flags().BoolVar(&runNoConsole, "no-console", false, "Run without the interactive console")
	rootCmd.AddCommand(runCmd)
}

var (
	runConfigPath  string
	runDescription string
	runListenAddr  string
	runAdminPort   int
	runNoConsole   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a peerscope node",
	Long:  `Start a node: listen for gossip, announce on the local network and serve the admin API.`,
	RunE:  runNode,
}

func runNode(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return err
	}
	if runDescription != "" {
		cfg.Node.Description = runDescription
	}
	if runListenAddr != "" {
		cfg.Gossip.ListenAddr = runListenAddr
	}
	if runAdminPort > 0 {
		cfg.Admin.Port = runAdminPort
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := newLogger(cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	pp, err := pprofutil.StartFromEnv(os.Getenv, log)
	if err != nil {
		return err
	}
	defer func() { _ = pp.Close() }()

	ident, err := identity.Load(cfg.Node.Home)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	log.Info("node identity", zap.String("peer_id", ident.PeerID))

	listener, err := transport.Listen(cfg.Gossip.ListenAddr, log)
	if err != nil {
		return fmt.Errorf("listen gossip: %w", err)
	}
	defer func() { _ = listener.Close() }()
	log.Info("gossip transport up", zap.String("addr", listener.Addr()))

	sess := gossip.NewSession(ident.PeerID, listener, log)

	disco, err := discovery.New(discovery.Options{
		SelfID:   ident.PeerID,
		SelfAddr: listener.Addr(),
		Group:    cfg.Discovery.Group,
		Interval: cfg.Discovery.Interval.Duration(),
		TTL:      cfg.Discovery.TTL.Duration(),
	}, log)
	if err != nil {
		return fmt.Errorf("start discovery: %w", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	n := node.New(node.Options{
		SelfID: ident.PeerID,
		Record: proto.PeerRecord{
			ID:          ident.PeerID,
			Hostname:    hostname,
			Description: cfg.Node.Description,
		},
		Topic:     cfg.Gossip.Topic,
		Session:   sess,
		Discovery: disco,
		Messages:  sess.Subscribe(cfg.Gossip.Topic),
		Events:    disco.Events(),
		Log:       log,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sess.Run(ctx) })
	g.Go(func() error { return disco.Run(ctx) })
	g.Go(func() error { return n.Run(ctx) })
	g.Go(func() error {
		return admin.NewServer(n.Client(), log).ListenAndServe(ctx, cfg.Admin.Host, cfg.Admin.Port)
	})
	if !runNoConsole {
		g.Go(func() error {
			defer stop() // quitting the console stops the node
			return console.New(n.Client(), n.Broadcasts(), os.Stdin, os.Stdout, log).Run(ctx)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
