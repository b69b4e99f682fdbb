// cmd/tools/clarifyctl/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"clarify-api/internal/common/completion"
	"clarify-api/internal/common/config"
	"clarify-api/internal/common/identity"
	"clarify-api/internal/common/logger"
	repairpipeline "clarify-api/internal/services/repair-pipeline"
)

var configPath string

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "clarifyctl",
		Short:         "Operator tool for the Clarify JSON repair service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: configs/config.yaml)")

	root.AddCommand(newRepairCmd(), newCreditsCmd())
	return root
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

func newRepairCmd() *cobra.Command {
	var heuristicOnly bool

	cmd := &cobra.Command{
		Use:   "repair [file]",
		Short: "Repair a JSON document read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			var completer completion.Completer
			if !heuristicOnly {
				cfg, err := config.LoadCompletion(configPath)
				if err != nil {
					return err
				}
				completer, err = completion.New(cmd.Context(), *cfg)
				if err != nil {
					return err
				}
			}

			pipeline := repairpipeline.New(&repairpipeline.Config{HeuristicOnly: heuristicOnly}, completer, logger.NewStructured("warn", "console", "stderr"))
			return runRepair(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), pipeline, input)
		},
	}
	cmd.Flags().BoolVar(&heuristicOnly, "heuristic-only", false, "never call the completion service")
	return cmd
}

func readInput(stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(raw), nil
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args[0], err)
	}
	return string(raw), nil
}

func runRepair(ctx context.Context, out, errOut io.Writer, pipeline *repairpipeline.Pipeline, input string) error {
	result, err := pipeline.Repair(ctx, input)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(result.Value); err != nil {
		return err
	}
	fmt.Fprintf(errOut, "tier: %s\n", result.Tier)
	return nil
}

func newCreditsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Inspect or grant account credits",
	}

	var key string
	get := &cobra.Command{
		Use:   "get",
		Short: "Resolve an API key and print its account and balance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, closer, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closer.Close()

			account, err := store.FindByCredential(cmd.Context(), key)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "account: %s\ncredits: %d\n", account.ID, account.Credits)
			return nil
		},
	}
	get.Flags().StringVar(&key, "key", "", "API key to resolve")
	_ = get.MarkFlagRequired("key")

	var (
		accountID string
		credits   int
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Overwrite an account's balance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if credits < 0 {
				return fmt.Errorf("credits must not be negative")
			}
			store, closer, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closer.Close()

			if err := store.SetCredits(cmd.Context(), accountID, credits); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "account %s now has %d credits\n", accountID, credits)
			return nil
		},
	}
	set.Flags().StringVar(&accountID, "account", "", "account id")
	set.Flags().IntVar(&credits, "credits", 0, "new balance")
	_ = set.MarkFlagRequired("account")
	_ = set.MarkFlagRequired("credits")

	cmd.AddCommand(get, set)
	return cmd
}

func openStore(ctx context.Context) (identity.AccountStore, io.Closer, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	return identity.Open(ctx, cfg.Identity)
}
