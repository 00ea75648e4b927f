package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/tKV/cmd/entity"
	"github.com/ValentinKolb/tKV/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "tkv",
		Short: "transactional entity store",
		Long: fmt.Sprintf(`tKV (v%s)

A transactional entity store written in Go. All reads and writes run
inside confined transaction contexts whose change sets are merged into
a persistent object store in commit order.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of tKV",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tKV v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(entity.EntityCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "codec"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("entity codec to use (json, gob, binary)"))
	key = "data"
	RootCmd.PersistentFlags().String(key, "", util.WrapString("path of the snapshot file to load on start and save on exit"))
	key = "log-level"
	RootCmd.PersistentFlags().String(key, "info", util.WrapString("log level (debug, info, warn, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
