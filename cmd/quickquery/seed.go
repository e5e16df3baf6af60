package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ricesearch/quickquery/internal/docstore"
)

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <fixture>",
		Short: "Load a YAML/JSON fixture into the configured doc store",
		Long: `Load business documents (recipes, inventory, orders, production tasks,
suppliers, customers) into the doc store. Only the sqlite store keeps them
after the command exits.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.DocStore.Type != "sqlite" {
				log.Warn("Doc store is not persistent, seeded documents are discarded on exit", "type", cfg.DocStore.Type)
			}

			fx, err := docstore.LoadFixture(args[0])
			if err != nil {
				return err
			}

			storeCfg := cfg.DocStore
			storeCfg.Fixture = ""
			store, err := docstore.New(cmd.Context(), storeCfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ins, ok := store.(docstore.Inserter)
			if !ok {
				return fmt.Errorf("doc store %q cannot be seeded", cfg.DocStore.Type)
			}
			n, err := docstore.Seed(cmd.Context(), ins, fx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d documents into %d collections\n", n, len(fx))
			return nil
		},
	}
}
