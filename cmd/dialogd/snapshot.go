package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"dialogd/internal/common/fsutil"
	"dialogd/internal/conversation"
	"dialogd/internal/persist"
)

func newSnapshotCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect saved conversation snapshots",
	}
	show := &cobra.Command{
		Use:     "show",
		Short:   "List the conversations in the configured snapshot store",
		Example: "  dialogd snapshot show --config dialogd.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := root.load(cmd, nil)
			if err != nil {
				return err
			}
			sink, err := persist.Open(cmd.Context(), storeOptions(cfg))
			if err != nil {
				return err
			}
			defer sink.Close()
			data, err := sink.Load(cmd.Context())
			if errors.Is(err, persist.ErrNoSnapshot) {
				fmt.Fprintln(cmd.OutOrStdout(), "no snapshot saved")
				return nil
			}
			if err != nil {
				return err
			}
			infos, err := conversation.Summaries(data)
			if err != nil {
				return err
			}
			if ts, ok := sink.(persist.Timestamped); ok {
				if at, err := ts.SavedAt(cmd.Context()); err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", at.Format(time.RFC3339))
				}
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tMESSAGES\tTOKENS\tUPDATED")
			for _, in := range infos {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", in.ID, in.Title, in.MessageCount, in.TotalTokens, in.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
	export := &cobra.Command{
		Use:   "export [file]",
		Short: "Write the saved snapshot to a file or stdout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := root.load(cmd, nil)
			if err != nil {
				return err
			}
			sink, err := persist.Open(cmd.Context(), storeOptions(cfg))
			if err != nil {
				return err
			}
			defer sink.Close()
			data, err := sink.Load(cmd.Context())
			if err != nil {
				return err
			}
			if len(args) == 0 {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return fsutil.WriteFileAtomic(args[0], data, 0o600)
		},
	}
	cmd.AddCommand(show, export)
	return cmd
}
