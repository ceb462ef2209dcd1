package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-plug/internal/plug"
)

const (
	defaultAddr    = "http://localhost:3001"
	defaultTimeout = 30 * time.Second
)

// options holds the persistent flags.
type options struct {
	addr    string
	timeout time.Duration
	json    bool
}

func (o *options) client() *client {
	return newClient(o.addr, o.timeout)
}

// newRootCmd builds the command tree writing to out.
func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "plugctl",
		Short:         "Control a smart plug through plugd",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	addr := os.Getenv("PLUGCTL_ADDR")
	if addr == "" {
		addr = defaultAddr
	}
	root.PersistentFlags().StringVar(&opts.addr, "addr", addr, "plugd address (env PLUGCTL_ADDR)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaultTimeout, "request timeout")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print the raw JSON response")

	root.AddCommand(
		newPowerCmd(opts, "on", "Switch the plug on"),
		newPowerCmd(opts, "off", "Switch the plug off"),
		newPowerCmd(opts, "toggle", "Flip the plug based on a live reading"),
		newStatusCmd(opts),
		newHistoryCmd(opts),
	)
	return root
}

func newPowerCmd(opts *options, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, body, err := opts.client().power(cmd.Context(), action)
			if err != nil {
				return err
			}
			if opts.json {
				return writeRaw(cmd.OutOrStdout(), body)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "plug %s (%s)\n", onOff(res.IsOn), res.Method)
			return nil
		},
	}
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Query the plug status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, body, err := opts.client().status(cmd.Context())
			if err != nil {
				return err
			}
			if opts.json {
				return writeRaw(cmd.OutOrStdout(), body)
			}
			printStatus(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

func newHistoryCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent plug operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}
			hist, body, err := opts.client().history(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if opts.json {
				return writeRaw(cmd.OutOrStdout(), body)
			}
			printHistory(cmd.OutOrStdout(), hist.Entries)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries to show")
	return cmd
}

func printStatus(w io.Writer, res plug.Result) {
	if res.Status == nil {
		fmt.Fprintf(w, "plug %s (%s)\n", onOff(res.IsOn), res.Method)
		return
	}
	st := res.Status
	fmt.Fprintf(w, "device:   %s\n", st.DeviceID)
	if st.Model != "" {
		fmt.Fprintf(w, "model:    %s\n", st.Model)
	}
	fmt.Fprintf(w, "power:    %s\n", onOff(st.IsOn))
	fmt.Fprintf(w, "source:   %s (method %s)\n", st.Source, res.Method)
	if !st.ObservedAt.IsZero() {
		fmt.Fprintf(w, "observed: %s\n", st.ObservedAt.Local().Format(time.RFC3339))
	}
	if st.Diagnostic != "" {
		fmt.Fprintf(w, "warning:  %s\n", st.Diagnostic)
	}
}

func printHistory(w io.Writer, entries []plug.HistoryEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no history")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tACTION\tMETHOD\tPOWER\tELAPSED\tERROR")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%dms\t%s\n",
			e.CreatedAt.Local().Format(time.DateTime),
			e.Action,
			dash(string(e.Method)),
			onOff(e.IsOn),
			e.ElapsedMS,
			dash(e.Error),
		)
	}
	tw.Flush() //nolint:errcheck // Output errors surface on the next write
}

func writeRaw(w io.Writer, body []byte) error {
	_, err := fmt.Fprintln(w, strings.TrimSpace(string(body)))
	return err
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
