package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/quorumgate/quorumgate/internal/alert"
	"github.com/quorumgate/quorumgate/internal/audit"
	"github.com/quorumgate/quorumgate/internal/config"
	"github.com/quorumgate/quorumgate/internal/event"
	"github.com/quorumgate/quorumgate/internal/govern"
	"github.com/quorumgate/quorumgate/internal/ledger"
	"github.com/quorumgate/quorumgate/internal/principal"
	"github.com/quorumgate/quorumgate/internal/request"
	"github.com/quorumgate/quorumgate/internal/scenario"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "quorumgate",
	Short: "QuorumGate - Multi-Party Ledger Governance Engine",
	Long:  `A quorum-based approval engine gating privileged operations on a managed ledger`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "quorumgate.yaml", "config file path")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(auditCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("quorumgate v0.1.0-alpha")
		fmt.Println("Multi-Party Ledger Governance Engine")
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the governance data directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := os.MkdirAll(cfg.Node.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}

		auditPath := filepath.Join(cfg.Node.DataDir, "audit.db")
		store, err := audit.Open(auditPath)
		if err != nil {
			return fmt.Errorf("failed to initialize audit store: %w", err)
		}
		defer store.Close()

		fmt.Printf("Initialized governance data directory: %s\n", cfg.Node.DataDir)
		fmt.Printf("Audit trail: %s\n", auditPath)
		fmt.Printf("Voting principals: %d\n", len(cfg.Governance.PrincipalIDs()))

		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display governance configuration and thresholds",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		ids := cfg.Governance.PrincipalIDs()
		fmt.Printf("Voting principals (%d):\n", len(ids))
		for _, id := range ids {
			fmt.Printf("  - %s\n", id)
		}
		fmt.Printf("Majority threshold: %d approvals\n", len(ids)/2+1)

		ttl := cfg.Governance.TTL()
		if ttl == 0 {
			ttl = request.DefaultTTL
		}
		fmt.Printf("Request validity window: %s\n", ttl)
		fmt.Printf("Data directory: %s\n", cfg.Node.DataDir)
		fmt.Printf("Alerts enabled: %v\n", cfg.Alerts.Enabled)

		return nil
	},
}

var simulateCmd = &cobra.Command{
	Use:   "simulate <scenario.yaml>",
	Short: "Run a scripted governance scenario",
	Long:  `Executes a sequence of request/approve steps against a fresh engine backed by an in-memory ledger, recording every notification to the audit trail`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger := newLogger(cfg.Logging.Level)

		if err := os.MkdirAll(cfg.Node.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		store, err := audit.Open(filepath.Join(cfg.Node.DataDir, "audit.db"))
		if err != nil {
			return fmt.Errorf("failed to open audit store: %w", err)
		}
		defer store.Close()

		sink := event.NewMulti(logger,
			event.NewLogSink(logger),
			store,
			alert.NewManager(cfg.Alerts.Enabled, cfg.Alerts.SlackWebhook),
		)

		voters, err := principal.New(cfg.Governance.PrincipalIDs(), sink)
		if err != nil {
			return fmt.Errorf("failed to build principal set: %w", err)
		}

		ldg := ledger.NewMemory(cfg.Ledger.Owner)
		eng := request.New[govern.Action](voters, sink)
		eng.SetTTL(cfg.Governance.TTL())

		router, err := govern.NewRouter(voters, eng, ldg, sink, logger)
		if err != nil {
			return fmt.Errorf("failed to build router: %w", err)
		}

		script, err := scenario.Load(args[0])
		if err != nil {
			return fmt.Errorf("failed to load scenario: %w", err)
		}

		fmt.Printf("Running scenario: %s (%d steps)\n", args[0], len(script.Steps))
		if err := scenario.NewRunner(router, logger).Run(script); err != nil {
			return fmt.Errorf("scenario failed: %w", err)
		}

		fmt.Println("Scenario completed")
		fmt.Printf("  Principals: %d (generation %d, threshold %d)\n",
			router.MemberCount(), router.Generation(), router.MinApprovals())
		fmt.Printf("  Ledger: owner=%s paused=%v issued=%d redeemed=%d calls=%d\n",
			ldg.Owner, ldg.Paused, ldg.Issued, ldg.Redeemed, len(ldg.Calls()))

		root, entries, err := store.Root()
		if err != nil {
			return fmt.Errorf("failed to compute audit root: %w", err)
		}
		fmt.Printf("  Audit trail: %d entries, root %s\n", entries, root)

		return nil
	},
}

var auditVerify bool

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Dump and verify the governance audit trail",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		store, err := audit.Open(filepath.Join(cfg.Node.DataDir, "audit.db"))
		if err != nil {
			return fmt.Errorf("failed to open audit store: %w", err)
		}
		defer store.Close()

		entries, err := store.Entries()
		if err != nil {
			return fmt.Errorf("failed to read audit trail: %w", err)
		}

		for _, entry := range entries {
			fmt.Printf("%6d  %-20s  %-20s  %s  %s\n",
				entry.Seq,
				entry.Event.Type,
				entry.Event.Action,
				entry.Event.Timestamp.Format("2006-01-02 15:04:05"),
				shorten(entry.Event.RequestID))
		}

		root, count, err := store.Root()
		if err != nil {
			return fmt.Errorf("failed to compute audit root: %w", err)
		}
		fmt.Printf("%d entries, root %s\n", count, root)

		if auditVerify {
			if err := store.VerifyChain(); err != nil {
				if audit.IsTamperError(err) {
					fmt.Printf("⚠️  %v\n", err)
					os.Exit(1)
				}
				return fmt.Errorf("verification failed: %w", err)
			}
			fmt.Println("✅ Audit chain verified")
		}

		return nil
	},
}

func init() {
	auditCmd.Flags().BoolVar(&auditVerify, "verify", false, "verify the hash chain")
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}

func shorten(id string) string {
	if len(id) > 16 {
		return id[:16] + "..."
	}
	return id
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
