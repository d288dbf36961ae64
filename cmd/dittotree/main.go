// Command dittotree administers a dittotree content tree: workspaces,
// placements, deletion plans, the trash and restores.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	userID     string
	userGroups []string
	asAdmin    bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "dittotree",
		Short:         "Content-tree mutation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is $XDG_CONFIG_HOME/dittotree/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", os.Getenv("USER"), "acting user ID")
	rootCmd.PersistentFlags().StringSliceVarP(&userGroups, "group", "g", nil, "groups of the acting user")
	rootCmd.PersistentFlags().BoolVar(&asAdmin, "admin", false, "act with the admin role")

	rootCmd.AddCommand(
		newInitCmd(),
		newCheckCmd(),
		newWorkspaceCmd(),
		newAddCmd(),
		newListCmd(),
		newMoveCmd(),
		newShareCmd(),
		newACLCmd(),
		newPlanCmd(),
		newDeleteCmd(),
		newTrashCmd(),
		newRestoreCmd(),
		newHistoryCmd(),
		newServeCmd(),
	)

	return rootCmd
}
