package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/spf13/cobra"
)

func newBannedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "banned",
		Short: "List banned IPs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), *configPath, func(ctx context.Context, a *app) error {
				entries, err := a.engine.Banned(ctx)
				if err != nil {
					return err
				}
				return printBanned(cmd.OutOrStdout(), entries)
			})
		},
	}
}

func printBanned(w io.Writer, entries []goGuard.BanEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "no banned IPs")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "IP\tSUSPICIOUS\tMALICIOUS\tRATE LIMIT\tTTL")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", e.IP, e.Suspicious, e.Malicious, e.RateLimitKey, e.TTL)
	}
	return tw.Flush()
}

func newUnbanCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "unban <ip>",
		Short: "Clear strikes and rate-limit state for an IP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *configPath, func(ctx context.Context, a *app) error {
				if err := a.engine.Unban(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "unbanned %s\n", args[0])
				return nil
			})
		},
	}
}

func newRevokeUserCmd(configPath *string) *cobra.Command {
	var disable bool
	cmd := &cobra.Command{
		Use:   "revoke-user <user-id>",
		Short: "Revoke every token issued to a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *configPath, func(ctx context.Context, a *app) error {
				var err error
				if disable {
					err = a.engine.SetUserEnabled(ctx, args[0], false)
				} else {
					err = a.engine.RevokeAllForUser(ctx, args[0])
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "revoked tokens of %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&disable, "disable", false, "also disable the account")
	return cmd
}

func newPurgeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "purge-unconfirmed",
		Short: "Delete signups that were never confirmed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), *configPath, func(ctx context.Context, a *app) error {
				n, err := a.engine.PurgeUnconfirmed(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d accounts\n", n)
				return nil
			})
		},
	}
}
