package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/klyr/eudoxus/internal/config"
	"github.com/klyr/eudoxus/internal/logging"
	"github.com/klyr/eudoxus/internal/rules"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			for _, msg := range verr.Problems {
				fmt.Fprintln(os.Stderr, msg)
			}
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "eudoxus",
		Short:         "Automaton-driven request inspection gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newEnforceCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newInspectCmd())
	root.AddCommand(newScanCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func newValidateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file and load every automaton it declares",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return errors.New("config path is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			engine, err := rules.BuildEngine(context.Background(), cfg, logging.Discard(), nil)
			if err != nil {
				return err
			}
			if loadErrors := engine.LoadErrors(); len(loadErrors) > 0 {
				errs := make([]error, len(loadErrors))
				for i, e := range loadErrors {
					errs[i] = e
				}
				return errors.Join(errs...)
			}

			ruleCount := 0
			for _, site := range cfg.Sites {
				ruleCount += len(engine.Rules(site.Name))
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "config ok: %d automata, %d sites, %d rules\n",
				engine.Registry().Len(), len(cfg.Sites), ruleCount)
			return err
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "version=%s commit=%s buildDate=%s\n", version, commit, buildDate)
		},
	}
}
