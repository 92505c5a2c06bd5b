package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/congo-pay/order_stake/internal/config"
	"github.com/congo-pay/order_stake/internal/escrow"
	"github.com/congo-pay/order_stake/internal/infra"
	"github.com/congo-pay/order_stake/internal/ledger"
	"github.com/congo-pay/order_stake/internal/logging"
)

// cli holds flag values and the lazily opened ledger shared by subcommands.
type cli struct {
	storage  infra.StorageOptions
	params   ledger.Params
	logLevel string
	policy   string

	logger  *slog.Logger
	opened  *infra.Storage
	ledger  *ledger.Ledger
	service *escrow.Service
}

// execute runs vectl with args and always releases the store afterwards.
func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	root, c := newRootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.Execute()
	if cerr := c.close(); err == nil {
		err = cerr
	}
	return err
}

func newRootCmd() (*cobra.Command, *cli) {
	c := &cli{}
	defaults, err := config.Load()
	if err != nil {
		// flags still work without a usable environment
		defaults = config.Config{StoreBackend: infra.BackendBolt, BoltPath: "data/ledger.db", Ledger: escrow.DefaultParams(nowMs())}
	}

	root := &cobra.Command{
		Use:          "vectl",
		Short:        "Inspect and maintain a voting-escrow ledger store",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			c.logger = logging.NewWithWriter(cmd.ErrOrStderr(), c.logLevel, "text")
		},
	}

	backend := defaults.StoreBackend
	if backend == infra.BackendMemory {
		backend = infra.BackendBolt
	}
	flags := root.PersistentFlags()
	flags.StringVar(&c.storage.Backend, "backend", backend, "storage backend: bolt, badger or postgres")
	flags.StringVar(&c.storage.BoltPath, "bolt-path", defaults.BoltPath, "bolt database file")
	flags.StringVar(&c.storage.BadgerPath, "badger-path", defaults.BadgerPath, "badger database directory")
	flags.StringVar(&c.storage.DatabaseURL, "database-url", defaults.DatabaseURL, "postgres connection url")
	flags.StringVar(&c.logLevel, "log-level", "warn", "log level")
	flags.StringVar(&c.policy, "expiry-policy", defaults.ExpiryPolicy.String(), "expired lock handling: saturate or strict")

	c.params = defaults.Ledger
	flags.Uint64Var(&c.params.StartTime, "start-time", c.params.StartTime, "epoch grid origin in unix ms, used only when initializing a new store (default now)")

	root.AddCommand(
		enrollCmd(c),
		putCmd(c),
		getCmd(c),
		countCmd(c),
		userOrderCmd(c),
		weightCmd(c),
		unlockTimeCmd(c),
		exportCmd(c),
		importCmd(c),
		benchCmd(),
	)
	return root, c
}

// open returns the service over the selected store, opening it on first use. c.params
// only apply to a store that has never been initialized.
func (c *cli) open(ctx context.Context) (*escrow.Service, error) {
	if c.service != nil {
		return c.service, nil
	}
	policy, err := escrow.ParseExpiryPolicy(c.policy)
	if err != nil {
		return nil, err
	}
	storage, err := infra.OpenStorage(ctx, c.storage)
	if err != nil {
		return nil, err
	}
	l, err := ledger.Open(ctx, storage.Store, c.params, 0)
	if err != nil {
		_ = storage.Store.Close()
		storage.Close()
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	c.opened, c.ledger = storage, l
	c.service = escrow.NewService(l, escrow.Options{Policy: policy, Logger: c.logger})
	return c.service, nil
}

func (c *cli) close() error {
	if c.ledger == nil {
		return nil
	}
	err := c.ledger.Close()
	c.opened.Close()
	c.ledger, c.opened, c.service = nil, nil, nil
	return err
}

func nowMs() uint64 {
	return uint64(time.Now().UnixMilli())
}
