package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newAccountCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "account",
		Short: "Manage vault accounts",
	}
	root.PersistentFlags().String("user", "", "user id")
	_ = root.MarkPersistentFlagRequired("user")

	create := &cobra.Command{
		Use:   "create",
		Short: "Generate a new account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, _ := cmd.Flags().GetString("user")
			chain, _ := cmd.Flags().GetString("chain")
			name, _ := cmd.Flags().GetString("name")
			return withVault(cmd, func(a *app) error {
				acct, err := a.vault.CreateAccount(cmd.Context(), user, chain, name)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), acct)
			})
		},
	}
	create.Flags().String("chain", "stellar", "chain of the account")
	create.Flags().String("name", "", "display name")

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import a secret seed (read from stdin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, _ := cmd.Flags().GetString("user")
			chain, _ := cmd.Flags().GetString("chain")
			name, _ := cmd.Flags().GetString("name")
			secret, err := readSecret(cmd)
			if err != nil {
				return err
			}
			return withVault(cmd, func(a *app) error {
				acct, err := a.vault.ImportAccount(cmd.Context(), user, chain, secret, name)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), acct)
			})
		},
	}
	importCmd.Flags().String("chain", "stellar", "chain of the account")
	importCmd.Flags().String("name", "", "display name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List the user's accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, _ := cmd.Flags().GetString("user")
			return withVault(cmd, func(a *app) error {
				accounts, err := a.vault.ListAccounts(cmd.Context(), user)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), accounts)
			})
		},
	}

	export := &cobra.Command{
		Use:   "export <account-id>",
		Short: "Reveal an account's secret seed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")
			return withVault(cmd, func(a *app) error {
				out, err := a.vault.Export(cmd.Context(), user, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <account-id>",
		Short: "Delete an account and its key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")
			return withVault(cmd, func(a *app) error {
				if err := a.vault.DeleteAccount(cmd.Context(), user, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}

	root.AddCommand(create, importCmd, list, export, del)
	return root
}

func withVault(cmd *cobra.Command, fn func(a *app) error) error {
	ctx, stop := signalContext()
	defer stop()
	cmd.SetContext(ctx)

	a, err := newApp(ctx, cmd, needs{vault: true})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func readSecret(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok {
		if info, err := f.Stat(); err == nil && info.Mode()&os.ModeCharDevice != 0 {
			fmt.Fprint(cmd.ErrOrStderr(), "secret seed: ")
		}
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read secret: %w", err)
	}
	secret := strings.TrimSpace(line)
	if secret == "" {
		return "", fmt.Errorf("secret seed is required on stdin")
	}
	return secret, nil
}
