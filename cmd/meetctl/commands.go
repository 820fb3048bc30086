package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/meetcloser/internal/settings"
)

const defaultAddr = "http://127.0.0.1:8190"

func newRootCmd(out io.Writer) *cobra.Command {
	var (
		addr    string
		timeout time.Duration
		client  *apiClient
	)

	root := &cobra.Command{
		Use:           "meetctl",
		Short:         "Inspect and configure a running meetcloser daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			client = newAPIClient(addr, timeout)
		},
	}
	root.SetOut(out)

	envAddr := os.Getenv("MEETCLOSER_ADDR")
	if envAddr == "" {
		envAddr = defaultAddr
	}
	root.PersistentFlags().StringVar(&addr, "addr", envAddr, "daemon base URL")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 3*time.Second, "request timeout")

	root.AddCommand(&cobra.Command{
		Use:   "count",
		Short: "Show how many meeting tabs have been closed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := client.closedCount(cmd.Context())
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "unknown")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Reset the closed tab counter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.resetCount(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), 0)
			return nil
		},
	})

	root.AddCommand(newConfigCmd(&client))

	root.AddCommand(&cobra.Command{
		Use:   "tabs",
		Short: "List the meeting tabs being monitored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tabs, err := client.tabs(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TAB\tCATEGORY\tSINCE\tIN MEETING\tARMED\tURL")
			for _, t := range tabs {
				armed := "-"
				if t.HomePageReturnTime != nil {
					armed = t.HomePageReturnTime.Local().Format(time.TimeOnly)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\n", t.TabID, t.Category, t.StartTime.Local().Format(time.TimeOnly), t.WasInMeeting, armed, t.URL)
			}
			return tw.Flush()
		},
	})

	var limit int
	closuresCmd := &cobra.Command{
		Use:   "closures",
		Short: "Show the most recent closures from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := client.closures(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tCATEGORY\tREASON\tCOUNTED\tURL")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", r.ClosedAt.Local().Format(time.DateTime), r.Category, r.Reason, r.Counted, r.URL)
			}
			return tw.Flush()
		},
	}
	closuresCmd.Flags().IntVar(&limit, "limit", 20, "number of closures to show")
	root.AddCommand(closuresCmd)

	root.AddCommand(&cobra.Command{
		Use:   "admissions",
		Short: "Show participants the daemon admitted into Meet calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			admitted, err := client.admissions(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tTAB\tNAME")
			for _, a := range admitted {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", a.At.Local().Format(time.DateTime), a.TabID, a.Name)
			}
			return tw.Flush()
		},
	})

	return root
}

func newConfigCmd(client **apiClient) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the closure timers",
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the closure timers in seconds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := (*client).configuration(cmd.Context())
			if err != nil {
				return err
			}
			printConfig(cmd.OutOrStdout(), cfg)
			return nil
		},
	})

	var zoom, teams, meet, fallback int
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Change one or more timers; unspecified timers keep their value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var partial settings.PartialTimerConfig
			flags := cmd.Flags()
			if flags.Changed("zoom") {
				partial.ZoomTimer = &zoom
			}
			if flags.Changed("teams") {
				partial.TeamsTimer = &teams
			}
			if flags.Changed("meet") {
				partial.MeetTimer = &meet
			}
			if flags.Changed("fallback-zoom") {
				partial.FallbackZoomTimer = &fallback
			}
			if partial == (settings.PartialTimerConfig{}) {
				return fmt.Errorf("nothing to change: pass at least one of --zoom, --teams, --meet, --fallback-zoom")
			}
			if err := (*client).saveConfiguration(cmd.Context(), partial); err != nil {
				return err
			}
			cfg, err := (*client).configuration(cmd.Context())
			if err != nil {
				return err
			}
			printConfig(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
	setCmd.Flags().IntVar(&zoom, "zoom", 0, "seconds before a Zoom meeting tab closes")
	setCmd.Flags().IntVar(&teams, "teams", 0, "seconds before a Teams launcher tab closes")
	setCmd.Flags().IntVar(&meet, "meet", 0, "seconds after leaving a Meet call before the tab closes (0 = immediately)")
	setCmd.Flags().IntVar(&fallback, "fallback-zoom", 0, "seconds before any other zoom.us page closes")
	cfgCmd.AddCommand(setCmd)

	return cfgCmd
}

func printConfig(w io.Writer, cfg settings.TimerConfig) {
	fmt.Fprintf(w, "zoomTimer=%d\nteamsTimer=%d\nmeetTimer=%d\nfallbackZoomTimer=%d\n",
		cfg.ZoomTimer, cfg.TeamsTimer, cfg.MeetTimer, cfg.FallbackZoomTimer)
}
