package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/marmos91/dittotree/pkg/tree"
	"github.com/spf13/cobra"
)

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <node-id> <parent-id>",
		Short: "Show the deletion plan for removing a node from a parent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := actingUser()
			if err != nil {
				return err
			}
			ids, err := parseIDs(args...)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				plan, err := rt.engine.CalculateDeletionOrder(cmd.Context(), ids[0], ids[1], user)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Plan %s for %s (%d nodes)\n", plan.ID, plan.Path, plan.Len())
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "#\tACTION\tID\tNAME")
				for i, entry := range plan.Entries() {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, entry.Action, entry.Node.ID, entry.Node.Name)
				}
				return tw.Flush()
			})
		},
	}
}

func newDeleteCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "delete <node-id> <parent-id>",
		Short: "Delete or unshare a node and everything only it holds",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := actingUser()
			if err != nil {
				return err
			}
			ids, err := parseIDs(args...)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				out := cmd.OutOrStdout()
				progress := func(done, total int, id tree.NodeID, outcome tree.Outcome) {
					if !quiet {
						fmt.Fprintf(out, "[%d/%d] %s %s\n", done, total, id, outcome)
					}
				}

				result, err := rt.engine.Delete(cmd.Context(), user, ids[0], ids[1], progress)
				if err != nil {
					return err
				}

				fmt.Fprintf(out, "%d deleted, %d unshared, %d failed\n",
					result.Count(tree.OutcomeDeleted),
					result.Count(tree.OutcomeUnshared),
					result.Count(tree.OutcomeFailed))
				if result.HasFailures() {
					return fmt.Errorf("deletion finished with failures")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print per-node progress")
	return cmd
}

func newTrashCmd() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "trash",
		Short: "List deleted nodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := actingUser()
			if err != nil {
				return err
			}
			if owner == "" {
				owner = string(user.ID)
			}
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				items, err := rt.engine.ListDeleted(cmd.Context(), user, tree.UserID(owner))
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tKIND\tNAME\tDELETED AT\tDELETED BY")
				for _, item := range items {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						item.Node.ID, item.Node.Kind, item.Node.Name,
						item.Revision.Timestamp.Format("2006-01-02 15:04:05"), item.Revision.Actor)
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "list another owner's trash (admin only)")
	return cmd
}

func newRestoreCmd() *cobra.Command {
	var asOf string

	cmd := &cobra.Command{
		Use:   "restore <node-id>",
		Short: "Restore a deleted node, or roll a live subtree back to a revision",
		Long: `Restore a deleted node, or roll a live subtree back to a revision.

Examples:
  dittotree restore <node>               # Bring a deleted node back
  dittotree restore <node> --as-of 3     # Replay revision 3 over the live subtree`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := actingUser()
			if err != nil {
				return err
			}
			ids, err := parseIDs(args[0])
			if err != nil {
				return err
			}

			return withRuntime(cmd.Context(), func(rt *runtime) error {
				out := cmd.OutOrStdout()

				if asOf != "" {
					number, err := strconv.ParseUint(asOf, 10, 64)
					if err != nil {
						return fmt.Errorf("invalid revision %q", asOf)
					}
					node, err := rt.engine.RestoreSubtreeAsCurrent(cmd.Context(), user, ids[0], number)
					if err != nil {
						return err
					}
					printNodes(out, node)
					return nil
				}

				result, err := rt.engine.FullRestore(cmd.Context(), user, ids[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Restored %d nodes, relinked %d\n", len(result.Restored), len(result.Relinked))
				printNodes(out, result.Restored...)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&asOf, "as-of", "", "revision number to replay over the live subtree")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <node-id>",
		Short: "Show the revisions of a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := actingUser()
			if err != nil {
				return err
			}
			ids, err := parseIDs(args[0])
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				revisions, err := rt.engine.History(cmd.Context(), user, ids[0])
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "REV\tKIND\tACTOR\tTIME\tNAME\tACL")
				for _, rev := range revisions {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
						rev.Number, rev.Kind, rev.Actor,
						rev.Timestamp.Format("2006-01-02 15:04:05"),
						rev.Snapshot.Node.Name, rev.Snapshot.Node.ACL)
				}
				return tw.Flush()
			})
		},
	}
}
