package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/presence/internal/adapters/postgres"
)

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Apply or inspect the postgres schema",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.Database.URL == "" {
				return errors.New("database.url is not set")
			}
			action := "up"
			if len(args) == 1 {
				action = args[0]
			}

			m, err := postgres.NewMigrator(c.cfg.Database.URL)
			if err != nil {
				return err
			}
			defer m.Close()

			out := cmd.OutOrStdout()
			switch action {
			case "down":
				if err := m.Down(); err != nil {
					return err
				}
			case "up":
				if err := m.Up(); err != nil {
					return err
				}
			}
			v, dirty, err := m.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "schema version %d (dirty=%t)\n", v, dirty)
			return nil
		},
	}
}
