package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newPoolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pools",
		Short: "List pools of the selected network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()
			a, err := newApp(ctx, cmd, needs{rpc: true})
			if err != nil {
				return err
			}
			defer a.Close()

			pools, err := a.engine.Pools(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), pools)
		},
	}
}

func newYieldCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "yield",
		Short: "Show supply and borrow APY of one reserve",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			poolAddr, _ := cmd.Flags().GetString("pool")
			asset, _ := cmd.Flags().GetString("asset")

			ctx, stop := signalContext()
			defer stop()
			a, err := newApp(ctx, cmd, needs{rpc: true})
			if err != nil {
				return err
			}
			defer a.Close()

			m, err := a.engine.GetYield(ctx, poolAddr, asset)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), m.Rounded())
		},
	}
	cmd.Flags().String("pool", "", "pool contract address")
	cmd.Flags().String("asset", "", "asset symbol or contract address")
	_ = cmd.MarkFlagRequired("pool")
	_ = cmd.MarkFlagRequired("asset")
	return cmd
}

func newBestYieldCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "best-yield",
		Short: "Rank supply APY of an asset across pools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			asset, _ := cmd.Flags().GetString("asset")
			minAPY, _ := cmd.Flags().GetFloat64("min-apy")

			ctx, stop := signalContext()
			defer stop()
			a, err := newApp(ctx, cmd, needs{rpc: true})
			if err != nil {
				return err
			}
			defer a.Close()

			opps, err := a.engine.FindBestYield(ctx, asset, minAPY)
			if err != nil {
				return err
			}
			for i := range opps {
				opps[i].APY = round2(opps[i].APY)
			}
			return printJSON(cmd.OutOrStdout(), opps)
		},
	}
	cmd.Flags().String("asset", "", "asset symbol or contract address")
	cmd.Flags().Float64("min-apy", 0, "minimum supply APY in percent")
	_ = cmd.MarkFlagRequired("asset")
	return cmd
}

func newPositionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "positions",
		Short: "Show an account's balances in a pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, _ := cmd.Flags().GetString("user")
			account, _ := cmd.Flags().GetString("account")
			poolAddr, _ := cmd.Flags().GetString("pool")

			ctx, stop := signalContext()
			defer stop()
			a, err := newApp(ctx, cmd, needs{rpc: true, vault: true})
			if err != nil {
				return err
			}
			defer a.Close()

			snap, err := a.engine.GetPositions(ctx, user, account, poolAddr)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), snap)
		},
	}
	cmd.Flags().String("user", "", "user id")
	cmd.Flags().String("account", "", "vault account id")
	cmd.Flags().String("pool", "", "pool contract address")
	_ = cmd.MarkFlagRequired("pool")
	return cmd
}

func newTxStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tx-status <hash>",
		Short: "Look up a submitted transaction by hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			a, err := newApp(ctx, cmd, needs{rpc: true})
			if err != nil {
				return err
			}
			defer a.Close()

			receipt, err := a.engine.TransactionStatus(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), receipt)
		},
	}
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
