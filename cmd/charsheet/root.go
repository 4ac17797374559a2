package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dlovans/charsheet/internal/config"
	"github.com/dlovans/charsheet/internal/logging"
	"github.com/dlovans/charsheet/internal/store"
	"github.com/dlovans/charsheet/pkg/ruleset"
	"github.com/dlovans/charsheet/pkg/xp"
)

// app holds what every command shares: flags, the loaded configuration
// and the logger.
type app struct {
	configPath string
	dbPath     string
	role       string
	actor      string
	verbose    bool

	cfg    config.Config
	logger *zap.Logger
	in     io.Reader
	out    io.Writer
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	a := &app{in: in, out: out, logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "charsheet",
		Short: "Character-sheet rules engine",
		Long: `charsheet normalizes, validates and lints ruleset schemas, resolves
character sheets against them, and keeps published rulesets, characters
and XP ledgers in a local SQLite database.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}
	root.SetIn(in)
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML config file")
	flags.StringVar(&a.dbPath, "db", "", "SQLite database path (overrides config)")
	flags.StringVar(&a.role, "role", "", "acting role: player or dm (overrides config)")
	flags.StringVar(&a.actor, "actor", "", "acting user id (overrides config)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		a.normalizeCmd(),
		a.validateCmd(),
		a.lintCmd(),
		a.resolveCmd(),
		a.rulesetCmd(),
		a.characterCmd(),
		a.xpCmd(),
	)
	return root
}

// setup loads configuration, applies flag overrides and builds the logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DBPath = a.dbPath
	}
	if flags.Changed("role") {
		cfg.Role = a.role
	}
	if flags.Changed("actor") {
		cfg.Actor = a.actor
	}
	if a.verbose {
		cfg.LogLevel = "debug"
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

func (a *app) actorRole() ruleset.Role {
	return a.cfg.ActorRole()
}

func (a *app) xpActor() xp.Actor {
	return xp.Actor{ID: a.cfg.Actor, Role: a.actorRole()}
}

func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	s, err := store.Open(ctx, a.cfg.DBPath, a.logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return s, nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
