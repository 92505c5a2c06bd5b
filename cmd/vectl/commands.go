package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/congo-pay/order_stake/internal/account"
	"github.com/congo-pay/order_stake/internal/escrow"
	"github.com/congo-pay/order_stake/internal/snapshot"
)

func enrollCmd(c *cli) *cobra.Command {
	var (
		start, count, at uint64
		suffix           string
		randomSuffix     bool
	)
	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Lock amount n for the synthetic account of every n in [start, start+count)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if randomSuffix {
				if cmd.Flags().Changed("suffix") {
					return fmt.Errorf("--suffix and --random-suffix are mutually exclusive")
				}
				suffix = account.RandomSuffix()
			}
			svc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("at") {
				at = nowMs()
			}
			total, err := svc.EnrollRange(cmd.Context(), start, count, suffix, at)
			if err != nil {
				return err
			}
			cmd.Printf("enrolled %d accounts (suffix %q), %d locks stored\n", count, suffix, total)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&start, "start", 10, "first user number")
	cmd.Flags().Uint64Var(&count, "count", 0, "number of users to enroll")
	cmd.Flags().StringVar(&suffix, "suffix", "", "suffix appended to every account id")
	cmd.Flags().BoolVar(&randomSuffix, "random-suffix", false, "append a fresh random suffix")
	cmd.Flags().Uint64Var(&at, "at", 0, "creation time in unix ms (default now)")
	return cmd
}

func putCmd(c *cli) *cobra.Command {
	var at uint64
	cmd := &cobra.Command{
		Use:   "put <account> <amount>",
		Short: "Create or replace the lock for an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := uint256.FromDecimal(args[1])
			if err != nil {
				return fmt.Errorf("amount must be a decimal integer: %w", err)
			}
			svc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("at") {
				at = nowMs()
			}
			if err := svc.InsertOrReplace(cmd.Context(), args[0], amount, at); err != nil {
				return err
			}
			return printLock(cmd, svc, args[0])
		},
	}
	cmd.Flags().Uint64Var(&at, "at", 0, "creation time in unix ms (default now)")
	return cmd
}

func getCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "get <account>",
		Short: "Show the lock held by an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			return printLock(cmd, svc, args[0])
		},
	}
}

func printLock(cmd *cobra.Command, svc *escrow.Service, id string) error {
	lock, err := svc.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	cmd.Printf("%s\t%s\t%d\n", id, lock.Amount.Dec(), lock.UnlockTime)
	return nil
}

func countCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of accounts holding a lock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			n, err := svc.Count(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Println(n)
			return nil
		},
	}
}

func userOrderCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "user-order <num>",
		Short: "Print the amount locked by a numbered user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			num, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("user number must be an unsigned integer: %w", err)
			}
			svc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			amount, err := svc.UserOrder(cmd.Context(), num)
			if err != nil {
				return err
			}
			cmd.Println(amount.Dec())
			return nil
		},
	}
}

func weightCmd(c *cli) *cobra.Command {
	var at uint64
	cmd := &cobra.Command{
		Use:   "weight",
		Short: "Print the aggregate decayed weight of all locks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("at") {
				at = nowMs()
			}
			total, err := svc.AggregateWeight(cmd.Context(), at)
			if err != nil {
				return err
			}
			cmd.Println(total.Dec())
			return nil
		},
	}
	cmd.Flags().Uint64Var(&at, "at", 0, "evaluation time in unix ms (default now)")
	return cmd
}

func unlockTimeCmd(c *cli) *cobra.Command {
	var at, epochs uint64
	cmd := &cobra.Command{
		Use:   "unlock-time",
		Short: "Print the epoch-aligned unlock time for a new lock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("at") {
				at = nowMs()
			}
			unlock, err := svc.UnlockTime(at, epochs)
			if err != nil {
				return err
			}
			cmd.Println(unlock)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&epochs, "epochs", 1, "number of whole epochs to lock for")
	cmd.Flags().Uint64Var(&at, "at", 0, "request time in unix ms (default now)")
	return cmd
}

func exportCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file|->",
		Short: "Write a checksummed snapshot of every lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			var w io.Writer = cmd.OutOrStdout()
			if args[0] != "-" {
				f, err := os.Create(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			n, err := snapshot.Export(cmd.Context(), w, svc.Ledger())
			if err != nil {
				return err
			}
			c.logger.Info("snapshot exported", "records", n, "target", args[0])
			return nil
		},
	}
}

func importCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Restore locks from a snapshot into a store with the same epoch settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			n, err := snapshot.Import(cmd.Context(), r, svc.Ledger())
			if err != nil {
				return err
			}
			cmd.Printf("imported %d locks\n", n)
			return nil
		},
	}
}

func benchCmd() *cobra.Command {
	var num uint64
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Time the weight formula over synthetic terms without touching a store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := time.Now()
			total, err := escrow.SyntheticWeight(cmd.Context(), num)
			if err != nil {
				return err
			}
			cmd.Printf("%s\t%d terms\t%s\n", total.Dec(), num, time.Since(start))
			return nil
		},
	}
	cmd.Flags().Uint64Var(&num, "num", 1_000_000, "number of synthetic terms")
	return cmd
}
