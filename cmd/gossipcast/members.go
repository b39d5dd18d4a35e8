package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	grpcx "gossipcast/internal/grpc"
)

func membersCmd() *cobra.Command {
	var (
		target  string
		timeout time.Duration
		useTLS  bool
	)
	cmd := &cobra.Command{
		Use:   "members",
		Short: "List the members known to a running node",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			client, err := grpcx.Dial(target, grpcx.ClientOptions(useTLS)...)
			if err != nil {
				return err
			}
			defer client.Close()

			status, err := client.Status(ctx)
			if err != nil {
				return err
			}
			members, err := client.Snapshot(ctx)
			if err != nil {
				return err
			}
			return printMembers(cmd.OutOrStdout(), status, members)
		},
	}
	cmd.Flags().StringVar(&target, "target", "127.0.0.1:7946", "gRPC address of the node")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	cmd.Flags().BoolVar(&useTLS, "tls", false, "connect with TLS")
	return cmd
}

func printMembers(w io.Writer, status grpcx.Status, members map[string]string) error {
	fmt.Fprintf(w, "node %s (%s) is %s\n", status.ID, status.Address, status.State)
	if status.Error != "" {
		fmt.Fprintf(w, "error: %s\n", status.Error)
	}
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tADDRESS\t")
	for _, id := range ids {
		self := ""
		if id == status.ID {
			self = "(self)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", id, members[id], self)
	}
	return tw.Flush()
}
