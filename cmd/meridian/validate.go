package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"meridian-hq/meridian/pkg/config"
	"meridian-hq/meridian/pkg/gateway"
	"meridian-hq/meridian/pkg/gateway/eval"
	"meridian-hq/meridian/pkg/identity"
	"meridian-hq/meridian/pkg/policies"
	"meridian-hq/meridian/pkg/policies/oauth2"
	"meridian-hq/meridian/pkg/store"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load a configuration file and compile every pipeline without starting
the server. This catches everything the gateway would refuse to start with:
schema and field errors, endpoints not served by exactly one pipeline,
unknown policies or condition predicates, and rejected action params.

Examples:
  # Validate the default config
  meridian validate

  # Validate a specific file
  meridian validate --config /etc/meridian/config.yaml`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	// Compile pipelines against throwaway collaborators so policy params
	// and conditions are checked too.
	dir, err := identity.SeedFromConfig(cfg.Identity)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	st := store.NewMemoryStore()
	defer st.Close()

	registry := policies.NewRegistry(policies.Options{
		Config: cfg,
		Store:  st,
		OAuth2: oauth2.NewServer(cfg.OAuth2, st, dir, nil, nil),
	})
	if _, err := gateway.New(cfg, gateway.Options{
		Registry:   registry,
		Conditions: eval.NewConditions(),
	}); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	fmt.Printf("✓ %s is valid\n", cfgFile)
	return nil
}
