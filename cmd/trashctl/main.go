package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/yukikurage/tasker/internal/cascade"
	"github.com/yukikurage/tasker/internal/config"
	"github.com/yukikurage/tasker/internal/database"
	"github.com/yukikurage/tasker/internal/identity"
	"github.com/yukikurage/tasker/internal/realtime"
	"github.com/yukikurage/tasker/internal/utils"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "trashctl",
		Short:        "Manage trashed records outside the API",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(transitionCmd("soft-delete", "Move a record and its dependents to the trash", (*cascade.Manager).SoftDelete))
	rootCmd.AddCommand(transitionCmd("restore", "Restore a trashed record and its dependents", (*cascade.Manager).Restore))
	rootCmd.AddCommand(transitionCmd("hard-delete", "Permanently delete a record and its dependents", (*cascade.Manager).HardDelete))
	rootCmd.AddCommand(replaceCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(purgeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type transition func(m *cascade.Manager, ctx context.Context, entity cascade.EntityType, id string) (*cascade.Report, error)

func transitionCmd(use, short string, run transition) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [entity] [id]",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, cleanup, err := newManager(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := run(manager, cmd.Context(), cascade.EntityType(args[0]), args[1])
			if report != nil {
				printJSON(report)
			}
			return err
		},
	}
}

func replaceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replace [lookup] [id] [replacement-id]",
		Short: "Point every reference to a lookup value at another value",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, cleanup, err := newManager(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := manager.ReplaceReferences(cmd.Context(), cascade.EntityType(args[0]), args[1], args[2])
			if report != nil {
				printJSON(report)
			}
			return err
		},
	}
}

func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [entity]",
		Short: "List trashed records of one entity type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, cleanup, err := newManager(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			page, _ := cmd.Flags().GetInt("page")
			limit, _ := cmd.Flags().GetInt("limit")
			params := utils.NewPagination(page, limit)

			items, total, err := manager.Trash(cmd.Context(), cascade.EntityType(args[0]), params)
			if err != nil {
				return err
			}
			printJSON(map[string]any{"items": items, "pagination": params.Response(total)})
			return nil
		},
	}

	cmd.Flags().IntP("page", "p", 1, "Page number")
	cmd.Flags().IntP("limit", "n", 20, "Items per page")

	return cmd
}

func purgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge [entity...]",
		Short: "Hard delete records trashed longer than the retention period",
		Long: `Purge permanently deletes trashed records whose deletion is older than
the retention period. Without arguments every registered entity type is
purged. Lookup values that are still referenced are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, cleanup, err := newManager(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			retention := config.Load().TrashRetention
			if cmd.Flags().Changed("older-than") {
				retention, _ = cmd.Flags().GetDuration("older-than")
			}
			cutoff := time.Now().UTC().Add(-retention)

			entities := manager.Registry().Entities()
			if len(args) > 0 {
				entities = nil
				for _, a := range args {
					entities = append(entities, cascade.EntityType(a))
				}
			}

			results := make(map[string]*cascade.PurgeResult, len(entities))
			for _, entity := range entities {
				result, err := manager.Purge(cmd.Context(), entity, cutoff)
				if result != nil {
					results[string(entity)] = result
				}
				if err != nil {
					printJSON(results)
					return fmt.Errorf("purge %s: %w", entity, err)
				}
			}
			printJSON(results)
			return nil
		},
	}

	cmd.Flags().Duration("older-than", 0, "Purge records trashed longer ago than this (default TRASH_RETENTION)")

	return cmd
}

// newManager connects to the configured database, identity provider and
// change feed relay.
func newManager(ctx context.Context) (*cascade.Manager, func(), error) {
	cfg := config.Load()

	if err := database.Connect(cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db := database.GetDB()

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	broker := realtime.NewBroker()
	if cfg.PubSubProjectID != "" {
		relay, err := realtime.NewPubSubRelay(ctx, cfg.PubSubProjectID, cfg.PubSubTopic, cfg.FirebaseCredentialsFile, broker)
		if err != nil {
			return nil, nil, err
		}
		broker.SetForwarder(relay)
		cleanups = append(cleanups, func() { _ = relay.Close(context.Background()) })
	}

	var deleter identity.Deleter
	if cfg.FirebaseProjectID != "" {
		provider, err := identity.NewFirebaseProvider(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentialsFile)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deleter = provider
	}

	manager := cascade.NewManager(cascade.DefaultRegistry(), cascade.NewGormStore(db), nil, broker, deleter)
	return manager, cleanup, nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
