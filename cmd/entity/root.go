package entity

import (
	"github.com/ValentinKolb/tKV/cmd/util"
	"github.com/ValentinKolb/tKV/lib/store"
	"github.com/ValentinKolb/tKV/lib/txn"
	"github.com/spf13/cobra"
)

var (
	entityStore store.IStore
	manager     txn.IManager

	// EntityCommands represents the entity command group
	EntityCommands = &cobra.Command{
		Use:                "entity",
		Short:              "Perform entity operations through transactions",
		PersistentPreRunE:  setupManager,
		PersistentPostRunE: teardownManager,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add subcommands
	EntityCommands.AddCommand(setCmd)
	EntityCommands.AddCommand(getCmd)
	EntityCommands.AddCommand(delCmd)
	EntityCommands.AddCommand(hasCmd)
	EntityCommands.AddCommand(listCmd)
	EntityCommands.AddCommand(perfTestCmd)
}

// setupManager opens the snapshot-backed store and starts a manager on it
func setupManager(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	util.InitLoggers()

	s, err := util.OpenStore()
	if err != nil {
		return err
	}

	entityStore = s
	manager = txn.NewManager(s)
	return nil
}

// teardownManager flushes all merges, persists the snapshot and releases
// the store
func teardownManager(_ *cobra.Command, _ []string) error {
	if err := manager.Close(); err != nil {
		return err
	}
	if err := util.SaveStore(entityStore); err != nil {
		return err
	}
	return entityStore.Close()
}
