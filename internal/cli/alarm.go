package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/aodh/internal/client"
	"github.com/roach88/aodh/internal/query"
	"github.com/roach88/aodh/internal/store"
)

// compactAlarmTypes are the alarm types whose --query uses the compact
// grammar and the list API.
var compactAlarmTypes = map[string]bool{
	"threshold": true,
	"event":     true,
}

// AlarmList renders alarms with the list columns.
type AlarmList []client.Alarm

func (l AlarmList) RenderText(w io.Writer) error {
	rows := make([][]string, 0, len(l))
	for _, a := range l {
		rows = append(rows, []string{a.AlarmID, a.Type, a.Name, a.State, a.Severity, strconv.FormatBool(a.Enabled)})
	}
	return writeTable(w, []string{"alarm_id", "type", "name", "state", "severity", "enabled"}, rows)
}

// NewAlarmCommand creates the alarm command group.
func NewAlarmCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alarm",
		Short: "Query alarms",
	}
	cmd.AddCommand(newAlarmListCommand(rootOpts))
	return cmd
}

// AlarmListOptions holds flags for the alarm list command.
type AlarmListOptions struct {
	*RootOptions
	Type    string
	Query   string
	Saved   string
	Filters []string
	Limit   int
	Marker  string
	Sorts   []string
}

// alarmRequest is the resolved form of alarm list flags: either a rich
// filter for the query API or items for the list API.
type alarmRequest struct {
	rich    bool
	filter  query.Node
	items   []query.Item
	page    client.Pagination
	options client.QueryOptions
}

func newAlarmListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AlarmListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alarms",
		Long: `List alarms, optionally narrowed by a query.

For threshold and event alarms (--type threshold|event) --query takes the
compact grammar, e.g. 'state=alarm;severity!=low', and is sent to the list
API. Otherwise --query takes the rich grammar, e.g.
'state="alarm" and not severity="low"', and is sent to the query API with the
type constraint added.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAlarmList(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Type, "type", "t", "", "alarm type")
	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "query expression (grammar depends on --type)")
	cmd.Flags().StringVar(&opts.Saved, "saved", "", "use a saved query")
	cmd.Flags().StringArrayVar(&opts.Filters, "filter", nil, "key=value equality filter (repeatable)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of alarms to return")
	cmd.Flags().StringVar(&opts.Marker, "marker", "", "last alarm ID of the previous page")
	cmd.Flags().StringArrayVar(&opts.Sorts, "sort", nil, "sort key and direction, e.g. name:asc (repeatable)")
	cmd.MarkFlagsMutuallyExclusive("query", "saved")

	return cmd
}

func runAlarmList(ctx context.Context, opts *AlarmListOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	req, err := opts.buildRequest(ctx)
	if err != nil {
		return fail(formatter, err)
	}

	c, err := opts.newClient()
	if err != nil {
		return fail(formatter, err)
	}

	var alarms []client.Alarm
	if req.rich {
		if req.filter != nil {
			if wire, err := query.Encode(req.filter); err == nil {
				formatter.VerboseLog("Query filter: %s", wire)
			}
		}
		alarms, err = c.QueryAlarms(ctx, req.filter, req.options)
	} else {
		formatter.VerboseLog("List parameters: %s", query.EncodeItems(req.items))
		alarms, err = c.ListAlarms(ctx, req.items, req.page)
	}
	if err != nil {
		return fail(formatter, err)
	}
	return formatter.Success(AlarmList(alarms))
}

// buildRequest turns the flags into a query API or list API request.
func (o *AlarmListOptions) buildRequest(ctx context.Context) (*alarmRequest, error) {
	if o.Limit < 0 {
		return nil, usageErrorf("invalid --limit %d: must not be negative", o.Limit)
	}

	expr, grammar, err := o.expression(ctx)
	if err != nil {
		return nil, err
	}

	filters, err := parseFilters(o.Filters)
	if err != nil {
		return nil, err
	}

	if grammar == store.GrammarRich {
		if len(filters) > 0 {
			return nil, usageErrorf("--filter cannot be combined with a rich query")
		}
		if o.Marker != "" {
			return nil, usageErrorf("--marker is only supported with compact queries")
		}

		var userFilter query.Node
		if expr != "" {
			userFilter, err = query.Compile(expr)
			if err != nil {
				return nil, err
			}
		}
		var typeFilter query.Node
		if o.Type != "" {
			typeFilter = query.EqualTo("type", query.String(o.Type))
		}
		orderBy, err := orderByFromSorts(o.Sorts)
		if err != nil {
			return nil, err
		}
		return &alarmRequest{
			rich:    true,
			filter:  query.AllOf(typeFilter, userFilter),
			options: client.QueryOptions{OrderBy: orderBy, Limit: o.Limit},
		}, nil
	}

	var items []query.Item
	if o.Type != "" {
		items = append(items, query.Item{Field: "type", Op: query.Eq, Value: o.Type})
	}
	if expr != "" {
		compiled, err := query.CompileCompact(expr)
		if err != nil {
			return nil, err
		}
		items = append(items, compiled...)
	}
	items = append(items, filters...)

	return &alarmRequest{
		items: items,
		page:  client.Pagination{Limit: o.Limit, Marker: o.Marker, Sorts: o.Sorts},
	}, nil
}

// expression returns the query text and the grammar it must be compiled
// with. A saved query carries its own grammar; otherwise the alarm type
// decides. With no query at all the list API is used unless the type needs
// the query API.
func (o *AlarmListOptions) expression(ctx context.Context) (string, store.Grammar, error) {
	want := store.GrammarRich
	if o.Type == "" || compactAlarmTypes[o.Type] {
		want = store.GrammarCompact
	}

	if o.Saved == "" {
		if o.Query != "" && o.Type == "" {
			want = store.GrammarRich
		}
		return o.Query, want, nil
	}

	saved, err := loadSaved(ctx, o.RootOptions, o.Saved)
	if err != nil {
		return "", "", err
	}
	if o.Type != "" && saved.Grammar != want {
		return "", "", usageErrorf("saved query %q is a %s query; alarms of type %q take %s queries",
			saved.Name, saved.Grammar, o.Type, want)
	}
	return saved.Expression, saved.Grammar, nil
}

// loadSaved reads one saved query.
func loadSaved(ctx context.Context, opts *RootOptions, name string) (store.SavedQuery, error) {
	s, err := opts.openStore()
	if err != nil {
		return store.SavedQuery{}, err
	}
	defer s.Close()

	saved, err := s.Get(ctx, name)
	if err != nil {
		return store.SavedQuery{}, wrapStoreError(err)
	}
	return saved, nil
}

// parseFilters turns key=value flags into equality items, sorted by key.
func parseFilters(params []string) ([]query.Item, error) {
	items := make([]query.Item, 0, len(params))
	for _, p := range params {
		item, err := query.ParseFilterParam(p)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Field < items[j].Field })
	return items, nil
}

// orderByFromSorts converts field:dir sort keys into the query API orderby
// list. A key without a direction sorts ascending.
func orderByFromSorts(sorts []string) (string, error) {
	if len(sorts) == 0 {
		return "", nil
	}
	order := make([]map[string]string, 0, len(sorts))
	for _, s := range sorts {
		field, dir, found := strings.Cut(s, ":")
		if !found {
			dir = "asc"
		}
		if field == "" || (dir != "asc" && dir != "desc") {
			return "", usageErrorf("invalid sort %q: use field:asc or field:desc", s)
		}
		order = append(order, map[string]string{field: dir})
	}
	data, err := json.Marshal(order)
	if err != nil {
		return "", fmt.Errorf("encode orderby: %w", err)
	}
	return string(data), nil
}
