package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/aodh/internal/client"
	"github.com/roach88/aodh/internal/query"
	"github.com/roach88/aodh/internal/store"
)

// HistoryList renders alarm history entries.
type HistoryList []client.HistoryEntry

func (l HistoryList) RenderText(w io.Writer) error {
	rows := make([][]string, 0, len(l))
	for _, e := range l {
		rows = append(rows, []string{e.AlarmID, e.Timestamp, e.Type, e.Detail})
	}
	return writeTable(w, []string{"alarm_id", "timestamp", "type", "detail"}, rows)
}

// AlarmHistory renders the history of a single alarm, so the alarm ID
// column is left out.
type AlarmHistory []client.HistoryEntry

func (h AlarmHistory) RenderText(w io.Writer) error {
	rows := make([][]string, 0, len(h))
	for _, e := range h {
		rows = append(rows, []string{e.Timestamp, e.Type, e.Detail, e.EventID})
	}
	return writeTable(w, []string{"timestamp", "type", "detail", "event_id"}, rows)
}

// NewAlarmHistoryCommand creates the alarm-history command group.
func NewAlarmHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alarm-history",
		Short: "Search alarm history",
	}
	cmd.AddCommand(newAlarmHistoryShowCommand(rootOpts))
	cmd.AddCommand(newAlarmHistorySearchCommand(rootOpts))
	return cmd
}

// HistorySearchOptions holds flags for the alarm-history search command.
type HistorySearchOptions struct {
	*RootOptions
	Query string
	Saved string
}

func newAlarmHistorySearchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistorySearchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Show history for all alarms matching a rich query",
		Long: `Show history for all alarms matching a rich query, e.g.

  aodh alarm-history search --query 'type="state transition" and alarm_id="..."'`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			ctx := cmd.Context()

			expr := opts.Query
			if opts.Saved != "" {
				saved, err := loadSaved(ctx, opts.RootOptions, opts.Saved)
				if err != nil {
					return fail(formatter, err)
				}
				if saved.Grammar != store.GrammarRich {
					return fail(formatter, usageErrorf("saved query %q is a %s query; history search takes rich queries",
						saved.Name, saved.Grammar))
				}
				expr = saved.Expression
			}

			var filter query.Node
			if expr != "" {
				node, err := query.Compile(expr)
				if err != nil {
					return fail(formatter, err)
				}
				filter = node
				if wire, err := query.Encode(node); err == nil {
					formatter.VerboseLog("Query filter: %s", wire)
				}
			}

			c, err := opts.newClient()
			if err != nil {
				return fail(formatter, err)
			}
			entries, err := c.SearchHistory(ctx, filter)
			if err != nil {
				return fail(formatter, err)
			}
			return formatter.Success(HistoryList(entries))
		},
	}

	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "rich query expression")
	cmd.Flags().StringVar(&opts.Saved, "saved", "", "use a saved rich query")
	cmd.MarkFlagsMutuallyExclusive("query", "saved")

	return cmd
}

// HistoryShowOptions holds flags for the alarm-history show command.
type HistoryShowOptions struct {
	*RootOptions
	Limit  int
	Marker string
	Sorts  []string
}

func newAlarmHistoryShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show <alarm-id>",
		Short: "Show history for an alarm",
		Long: `Show the change history of one alarm, e.g.

  aodh alarm-history show 3f2504e0-4f89-11d3-9a0c-0305e82c3301 --sort timestamp:desc --limit 10`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)

			if opts.Limit < 0 {
				return fail(formatter, usageErrorf("invalid --limit %d: must not be negative", opts.Limit))
			}
			page := client.Pagination{Limit: opts.Limit, Marker: opts.Marker, Sorts: opts.Sorts}
			formatter.VerboseLog("History parameters: %s", page.Encode())

			c, err := opts.newClient()
			if err != nil {
				return fail(formatter, err)
			}
			entries, err := c.AlarmHistory(cmd.Context(), args[0], page)
			if err != nil {
				return fail(formatter, err)
			}
			return formatter.Success(AlarmHistory(entries))
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of entries to return (server default when 0)")
	cmd.Flags().StringVar(&opts.Marker, "marker", "", "event_id of the last entry of the previous page")
	cmd.Flags().StringArrayVar(&opts.Sorts, "sort", nil, "sort key and direction, e.g. timestamp:desc (repeatable)")

	return cmd
}
