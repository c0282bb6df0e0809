// Package main provides the entry point for the sdn-trust node, which
// publishes a trust record into a Kademlia overlay and reports what it
// learns from its peers.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"

	"github.com/spacedatanetwork/sdn-trust/internal/bootstrap"
	"github.com/spacedatanetwork/sdn-trust/internal/config"
	"github.com/spacedatanetwork/sdn-trust/internal/keys"
	"github.com/spacedatanetwork/sdn-trust/internal/metrics"
	"github.com/spacedatanetwork/sdn-trust/internal/node"
	"github.com/spacedatanetwork/sdn-trust/internal/overlay"
	"github.com/spacedatanetwork/sdn-trust/internal/record"
	"github.com/spacedatanetwork/sdn-trust/internal/recordlog"
)

var log = logging.Logger("sdn-trust")

// recordInfo is the HKDF info string for records derived from the node key.
const recordInfo = "sdn-trust/record/v1"

var rootCmd = &cobra.Command{
	Use:   "sdn-trust",
	Short: "Trust record overlay node",
	Long: `sdn-trust joins a Kademlia overlay, discovers peers on the local network
and publishes this node's trust record under its identity key.`,
	PersistentPreRunE: setupLogging,
	SilenceUsage:      true,
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the trust node",
	Long:  `Start the node, publish its record and keep running until interrupted.`,
	RunE:  runDaemon,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	Long:  `Write the default configuration file.`,
	RunE:  runInit,
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Print a random identity key and trust value",
	RunE:  runKeygen,
}

var decodeCmd = &cobra.Command{
	Use:   "decode <key-hex> [value-hex]",
	Short: "Decode an identity key and optional trust value",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runDecode,
}

var (
	configPath string
	listenAddr string
	debug      bool
	fromKey    bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")

	daemonCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "override listen address")
	keygenCmd.Flags().BoolVar(&fromKey, "from-key", false, "derive the pair from the configured node key")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(decodeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(cmd *cobra.Command, args []string) error {
	if debug {
		logging.SetAllLoggers(logging.LevelDebug)
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		// The command itself reports the config error.
		logging.SetAllLoggers(logging.LevelInfo)
		return nil
	}
	level, err := logging.LevelFromString(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	logging.SetAllLoggers(level)
	return nil
}

// recordSource returns the entropy used for the node record: the system
// RNG, or a stream derived from the node key when records must be stable.
func recordSource(cfg *config.Config) (io.Reader, error) {
	if !cfg.Identity.Deterministic {
		return rand.Reader, nil
	}
	privKey, err := keys.LoadOrCreate(cfg.Identity.KeyPath)
	if err != nil {
		return nil, err
	}
	seed, err := keys.Seed(privKey)
	if err != nil {
		return nil, err
	}
	return record.NewDerivedSource(seed, recordInfo), nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override listen address if specified
	if listenAddr != "" {
		cfg.Network.Listen = []string{listenAddr}
	}

	privKey, err := keys.LoadOrCreate(cfg.Identity.KeyPath)
	if err != nil {
		return fmt.Errorf("failed to load node key: %w", err)
	}

	src, err := recordSource(cfg)
	if err != nil {
		return fmt.Errorf("failed to prepare record source: %w", err)
	}
	key, value, err := record.Generate(src)
	if err != nil {
		return fmt.Errorf("failed to generate record: %w", err)
	}

	bootstrapPeers := bootstrap.ParseAddresses(cfg.Network.Bootstrap)

	ov, err := overlay.NewLibp2p(ctx, privKey, overlay.Options{
		ListenAddrs:        cfg.Network.Listen,
		MaxConns:           cfg.Network.MaxConns,
		ProtocolPrefix:     cfg.Network.ProtocolPrefix,
		MDNSServiceName:    cfg.Network.MDNSServiceName,
		Rendezvous:         cfg.Network.Rendezvous,
		RendezvousInterval: time.Duration(cfg.Overlay.RendezvousInterval),
		BootstrapPeers:     bootstrapPeers,
		QueryTimeout:       time.Duration(cfg.Overlay.QueryTimeout),
		RecordMaxAge:       time.Duration(cfg.Overlay.RecordMaxAge),
		PublishRetry:       time.Duration(cfg.Overlay.PublishRetry),
	})
	if err != nil {
		return fmt.Errorf("failed to create overlay: %w", err)
	}
	defer func() {
		if err := ov.Close(); err != nil {
			log.Warnf("Overlay shutdown error: %v", err)
		}
	}()

	var opts []node.Option

	if cfg.Storage.ArchivePath != "" {
		archive, err := recordlog.Open(cfg.Storage.ArchivePath)
		if err != nil {
			return fmt.Errorf("failed to open record archive: %w", err)
		}
		defer archive.Close()
		opts = append(opts, node.WithRecordSink(archive))
		log.Infof("Archiving observed records to %s", archive.Path())
	}

	if cfg.Metrics.Enabled {
		m := metrics.New()
		srv := metrics.Start(cfg.Metrics.ListenAddr, m)
		defer srv.Stop()
		opts = append(opts, node.WithMetrics(m))
	}

	orch := node.New(ov, key, value, opts...)

	log.Info("Starting sdn-trust daemon...")
	log.Infof("Peer ID: %s", ov.ID())
	if err := orch.Setup(ctx); err != nil {
		return fmt.Errorf("failed to start node: %w", err)
	}

	for _, res := range bootstrap.ConnectAll(ctx, ov, bootstrapPeers) {
		if res.Err != nil {
			log.Warnf("Bootstrap peer %s unreachable: %v", res.PeerID, res.Err)
		}
	}

	if err := orch.StartProviding(ctx); err != nil {
		log.Warnf("Failed to advertise identity key: %v", err)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- orch.Run(ctx) }()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info("Shutting down...")
		return stopRun(cancel, runErr)
	case err := <-runErr:
		log.Info("Shutting down...")
		return runResult(err)
	}
}

// stopRun cancels the event loop and waits for it to return, so nothing
// touches the archive or metrics once they are closed.
func stopRun(cancel context.CancelFunc, runErr <-chan error) error {
	cancel()
	return runResult(<-runErr)
}

func runResult(err error) error {
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()

	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	if err := config.Save(path, cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	log.Infof("Initialized sdn-trust configuration at %s", path)
	return nil
}

func runKeygen(cmd *cobra.Command, args []string) error {
	src := io.Reader(rand.Reader)
	if fromKey {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg.Identity.Deterministic = true
		if src, err = recordSource(cfg); err != nil {
			return err
		}
	}

	key, value, err := record.Generate(src)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "key:   %s\n", key)
	fmt.Fprintf(out, "value: %s\n", value)
	return nil
}

func runDecode(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	key, err := record.ParseIdentityKeyHex(args[0])
	if err != nil {
		return fmt.Errorf("key: %w", err)
	}
	fmt.Fprintf(out, "x: %s\n", key.X)
	fmt.Fprintf(out, "y: %s\n", key.Y)

	if len(args) < 2 {
		return nil
	}
	value, err := record.ParseTrustValueHex(args[1])
	if err != nil {
		return fmt.Errorf("value: %w", err)
	}
	fmt.Fprintf(out, "sig.r.x: %s\n", value.SigRX)
	fmt.Fprintf(out, "sig.r.y: %s\n", value.SigRY)
	fmt.Fprintf(out, "sig.s:   %s\n", value.SigS)
	for i, n := range value.Neighbours {
		fmt.Fprintf(out, "neighbour[%d]: %s score=%d\n", i, n, value.Scores[i])
	}
	return nil
}
