package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/marmos91/dittotree/pkg/mutator"
	"github.com/marmos91/dittotree/pkg/tree"
	"github.com/spf13/cobra"
)

func newWorkspaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Show or create the acting user's workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := actingUser()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				ws, err := rt.engine.Workspace(cmd.Context(), user.ID)
				if err != nil {
					return err
				}
				printNodes(cmd.OutOrStdout(), ws)
				return nil
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create [name]",
		Short: "Create the acting user's workspace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := actingUser()
			if err != nil {
				return err
			}
			var name string
			if len(args) == 1 {
				name = args[0]
			}
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				ws, err := rt.engine.CreateWorkspace(cmd.Context(), user, name)
				if err != nil {
					return err
				}
				printNodes(cmd.OutOrStdout(), ws)
				return nil
			})
		},
	})

	return cmd
}

func newAddCmd() *cobra.Command {
	var (
		kind string
		mode string
		acl  string
	)

	cmd := &cobra.Command{
		Use:   "add <parent-id> <name>",
		Short: "Create a node under a parent",
		Long: `Create a node under a parent.

Examples:
  dittotree add <parent> Projects                        # Folder
  dittotree add <parent> Report --kind document --acl 760`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := actingUser()
			if err != nil {
				return err
			}
			ids, err := parseIDs(args[0])
			if err != nil {
				return err
			}
			k, err := tree.ParseKind(kind)
			if err != nil {
				return err
			}
			m, err := tree.ParseMode(mode)
			if err != nil {
				return err
			}
			mask, err := tree.ParseACL(acl)
			if err != nil {
				return err
			}

			return withRuntime(cmd.Context(), func(rt *runtime) error {
				node, err := rt.engine.AddChild(cmd.Context(), user, mutator.Placement{
					ParentID: ids[0],
					Child:    &tree.Node{Kind: k, Name: args[1], ACL: mask},
					Mode:     m,
				})
				if err != nil {
					return err
				}
				printNodes(cmd.OutOrStdout(), node)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", tree.KindFolder.String(), "node kind (folder, notebook, document, media)")
	cmd.Flags().StringVarP(&mode, "mode", "m", tree.ModeDefault.String(), "propagation mode of the new edge")
	cmd.Flags().StringVar(&acl, "acl", "740", "own ACL of the node (octal)")
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <node-id>",
		Short: "List the live children of a node",
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
				children, err := rt.engine.Children(cmd.Context(), user, ids[0])
				if err != nil {
					return err
				}
				printNodes(cmd.OutOrStdout(), children...)
				return nil
			})
		},
	}
}

func newMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <node-id> <from-id> <to-id>",
		Short: "Move a node to another parent",
		Args:  cobra.ExactArgs(3),
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
				moved, err := rt.engine.Move(cmd.Context(), user, ids[0], ids[1], ids[2])
				if err != nil {
					return err
				}
				if !moved {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing to do: source and destination are the same")
				}
				return nil
			})
		},
	}
}

func newShareCmd() *cobra.Command {
	var (
		readOnly bool
		members  []string
	)

	cmd := &cobra.Command{
		Use:   "share <node-id> [<parent-id>]",
		Short: "Share a node into another folder, or a folder with group members",
		Long: `Share a node into another folder, or a folder with group members.

Examples:
  dittotree share <doc> <folder>                   # Link doc into folder
  dittotree share <folder> --member bob --member carol
  dittotree delete <doc> <folder>                  # Unshare again`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := actingUser()
			if err != nil {
				return err
			}
			ids, err := parseIDs(args...)
			if err != nil {
				return err
			}

			mode := tree.ModeSharedReadWrite
			if readOnly {
				mode = tree.ModeSharedReadOnly
			}

			return withRuntime(cmd.Context(), func(rt *runtime) error {
				if len(members) > 0 {
					userIDs := make([]tree.UserID, 0, len(members))
					for _, m := range members {
						userIDs = append(userIDs, tree.UserID(m))
					}
					result, err := rt.engine.ShareWithGroup(cmd.Context(), user, ids[0], userIDs, mode)
					if err != nil {
						return err
					}
					printResult(cmd.OutOrStdout(), result)
					return nil
				}

				if len(ids) != 2 {
					return fmt.Errorf("share needs a parent id or --member")
				}
				node, err := rt.engine.AddChild(cmd.Context(), user, mutator.Placement{
					ParentID: ids[1],
					Child:    &tree.Node{ID: ids[0]},
					Mode:     mode,
				})
				if err != nil {
					return err
				}
				printNodes(cmd.OutOrStdout(), node)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&readOnly, "read-only", false, "share read-only")
	cmd.Flags().StringSliceVar(&members, "member", nil, "share the folder with these users' workspaces")
	return cmd
}

func newACLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chmod <octal-acl> <node-id>",
		Short: "Change a node's own ACL",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := actingUser()
			if err != nil {
				return err
			}
			mask, err := tree.ParseACL(args[0])
			if err != nil {
				return err
			}
			ids, err := parseIDs(args[1])
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				node, err := rt.engine.SetACL(cmd.Context(), user, ids[0], mask)
				if err != nil {
					return err
				}
				printNodes(cmd.OutOrStdout(), node)
				return nil
			})
		},
	}
}

func printNodes(w io.Writer, nodes ...*tree.Node) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tNAME\tOWNER\tACL\tEFFECTIVE")
	for _, n := range nodes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", n.ID, n.Kind, n.Name, n.Owner, n.ACL, n.EffectiveACL)
	}
	_ = tw.Flush()
}

func printResult(w io.Writer, result *tree.CompositeResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tOUTCOME")
	for _, id := range result.IDs() {
		outcome, _ := result.Outcome(id)
		fmt.Fprintf(tw, "%s\t%s\n", id, outcome)
	}
	_ = tw.Flush()
}
