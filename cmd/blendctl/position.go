package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yusefmosiah/tuxedo-sub004/internal/model"
)

func newPositionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "position",
		Short: "Supply, withdraw, borrow or repay in a pool",
		Args:  cobra.NoArgs,
		RunE:  runPosition,
	}
	cmd.Flags().String("user", "", "user id")
	cmd.Flags().String("account", "", "vault account id")
	cmd.Flags().String("pool", "", "pool contract address")
	cmd.Flags().String("asset", "", "asset symbol or contract address")
	cmd.Flags().String("amount", "", "amount in asset units (e.g. 12.5)")
	cmd.Flags().String("kind", "supply_collateral", "supply_collateral, withdraw_collateral, supply, withdraw, borrow or repay")
	cmd.Flags().Bool("dry-run", false, "simulate only, do not sign or submit")
	cmd.Flags().Bool("simulate", true, "simulate before submitting")
	cmd.Flags().Duration("submit-timeout", 60*time.Second, "how long to wait for a final status")
	cmd.Flags().Duration("poll-interval", time.Second, "status poll interval")
	for _, name := range []string{"user", "account", "pool", "asset", "amount"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func runPosition(cmd *cobra.Command, _ []string) error {
	user, _ := cmd.Flags().GetString("user")
	account, _ := cmd.Flags().GetString("account")
	poolAddr, _ := cmd.Flags().GetString("pool")
	asset, _ := cmd.Flags().GetString("asset")
	rawAmount, _ := cmd.Flags().GetString("amount")
	rawKind, _ := cmd.Flags().GetString("kind")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", rawAmount, err)
	}
	kind, err := model.ParseRequestType(rawKind)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	a, err := newApp(ctx, cmd, needs{rpc: true, vault: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.checkNetwork(ctx); err != nil {
		return err
	}

	a.logger.Info("position request",
		zap.String("network", a.network.Name),
		zap.String("pool", poolAddr),
		zap.String("asset", asset),
		zap.String("amount", amount.String()),
		zap.Stringer("kind", kind),
		zap.Bool("dry_run", dryRun),
	)

	var receipt model.TransactionReceipt
	if dryRun {
		receipt, err = a.engine.SimulatePosition(ctx, user, account, poolAddr, asset, amount, kind)
	} else {
		receipt, err = a.engine.ChangePosition(ctx, user, account, poolAddr, asset, amount, kind)
	}
	if err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), receipt); err != nil {
		return err
	}
	switch receipt.Outcome {
	case model.OutcomeSuccess, model.OutcomeSimulated:
		return nil
	case model.OutcomeAmbiguous:
		return fmt.Errorf("transaction %s outcome unknown, check with tx-status", receipt.Hash)
	default:
		if receipt.Error != nil {
			return receipt.Error
		}
		return fmt.Errorf("transaction %s", receipt.Outcome)
	}
}
