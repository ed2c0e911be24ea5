package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/aodh/internal/query"
	"github.com/roach88/aodh/internal/store"
)

// NewQueryCommand creates the query command group: offline compilation and
// saved-query management.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Compile, save and inspect alarm queries",
	}

	cmd.AddCommand(newQueryParseCommand(rootOpts))
	cmd.AddCommand(newQuerySplitCommand(rootOpts))
	cmd.AddCommand(newQuerySaveCommand(rootOpts))
	cmd.AddCommand(newQueryListCommand(rootOpts))
	cmd.AddCommand(newQueryShowCommand(rootOpts))
	cmd.AddCommand(newQueryDeleteCommand(rootOpts))

	return cmd
}

// ParseResult is the output of query parse.
type ParseResult struct {
	Expression string `json:"expression" yaml:"expression"`
	Filter     string `json:"filter" yaml:"filter"`
}

// RenderText prints the filter exactly as it is sent to the service.
func (r ParseResult) RenderText(w io.Writer) error {
	_, err := fmt.Fprintln(w, r.Filter)
	return err
}

func newQueryParseCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "parse <expression>",
		Short: "Compile a rich query into its JSON filter",
		Long: `Compile a rich query into the JSON filter sent to the alarm service.

Comparisons use =, ==, !=, <, <=, >, >= (or eq, ne, lt, le, gt, ge) and combine
with not, and, or and parentheses, e.g.

  aodh query parse 'state="alarm" and (severity="critical" or severity="moderate")'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)

			node, err := query.Compile(args[0])
			if err != nil {
				return fail(formatter, err)
			}
			wire, err := query.Encode(node)
			if err != nil {
				return fail(formatter, err)
			}
			formatter.VerboseLog("Compiled %d character expression", len(args[0]))
			return formatter.Success(ParseResult{Expression: args[0], Filter: wire})
		},
	}
}

// ItemList renders compact query items as a table.
type ItemList []query.Item

func (l ItemList) RenderText(w io.Writer) error {
	rows := make([][]string, 0, len(l))
	for _, item := range l {
		rows = append(rows, []string{item.Field, item.Op.Name(), item.Type.String(), item.Value})
	}
	return writeTable(w, []string{"field", "op", "type", "value"}, rows)
}

// QueryString is the encoded q.* parameter list of a compact query.
type QueryString struct {
	QueryString string `json:"querystring" yaml:"querystring"`
}

func (q QueryString) RenderText(w io.Writer) error {
	_, err := fmt.Fprintln(w, q.QueryString)
	return err
}

// QuerySplitOptions holds flags for the query split command.
type QuerySplitOptions struct {
	*RootOptions
	QueryString bool
}

func newQuerySplitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QuerySplitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "split <expression>",
		Short: "Split a compact query into filter items",
		Long: `Split a compact query of the form field<op>[type::]value;... into the
items sent to the alarm list API, e.g.

  aodh query split 'state=alarm;cpu_util>=float::80.5'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)

			items, err := query.CompileCompact(args[0])
			if err != nil {
				return fail(formatter, err)
			}
			formatter.VerboseLog("Split into %d item(s)", len(items))

			if opts.QueryString {
				return formatter.Success(QueryString{QueryString: query.EncodeItems(items)})
			}
			return formatter.Success(ItemList(items))
		},
	}

	cmd.Flags().BoolVar(&opts.QueryString, "querystring", false, "print the encoded q.* query string instead of items")

	return cmd
}

// SavedQueryList renders saved queries as a table.
type SavedQueryList []store.SavedQuery

func (l SavedQueryList) RenderText(w io.Writer) error {
	rows := make([][]string, 0, len(l))
	for _, q := range l {
		rows = append(rows, []string{q.Name, string(q.Grammar), q.Expression, q.CreatedAt.Format(time.RFC3339)})
	}
	return writeTable(w, []string{"name", "grammar", "expression", "created_at"}, rows)
}

// SavedQueryDetail renders one saved query as a field/value table.
type SavedQueryDetail store.SavedQuery

func (d SavedQueryDetail) RenderText(w io.Writer) error {
	return writeTable(w, []string{"Field", "Value"}, [][]string{
		{"name", d.Name},
		{"grammar", string(d.Grammar)},
		{"expression", d.Expression},
		{"compiled", d.Compiled},
		{"created_at", d.CreatedAt.Format(time.RFC3339)},
	})
}

// QuerySaveOptions holds flags for the query save command.
type QuerySaveOptions struct {
	*RootOptions
	Compact bool
	Force   bool
}

func newQuerySaveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QuerySaveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "save <name> <expression>",
		Short: "Compile an expression and save it under a name",
		Long: `Compile an expression and save it under a name for use with --saved.

Rich queries are the default; --compact saves a compact query for the alarm
list API. The expression is rejected if it does not compile.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)

			grammar := store.GrammarRich
			if opts.Compact {
				grammar = store.GrammarCompact
			}

			s, err := opts.openStore()
			if err != nil {
				return fail(formatter, err)
			}
			defer s.Close()

			saved, err := s.Save(cmd.Context(), args[0], grammar, args[1], store.SaveOptions{Overwrite: opts.Force})
			if err != nil {
				return fail(formatter, wrapStoreError(err))
			}
			formatter.VerboseLog("Saved %s query %q", saved.Grammar, saved.Name)
			return formatter.Success(SavedQueryDetail(saved))
		},
	}

	cmd.Flags().BoolVar(&opts.Compact, "compact", false, "expression uses the compact grammar")
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "replace an existing query with the same name")

	return cmd
}

// QueryListOptions holds flags for the query list command.
type QueryListOptions struct {
	*RootOptions
	Grammar string
	Where   string
}

func newQueryListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List saved queries",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)

			grammar := store.Grammar(opts.Grammar)
			if grammar != "" && grammar != store.GrammarRich && grammar != store.GrammarCompact {
				return fail(formatter, usageErrorf("invalid grammar %q: must be rich or compact", opts.Grammar))
			}

			var filter query.Node
			if grammar != "" {
				filter = query.EqualTo("grammar", query.String(grammar))
			}
			if opts.Where != "" {
				where, err := query.Compile(opts.Where)
				if err != nil {
					return fail(formatter, err)
				}
				filter = query.AllOf(filter, where)
			}

			s, err := opts.openStore()
			if err != nil {
				return fail(formatter, err)
			}
			defer s.Close()

			saved, err := s.Search(cmd.Context(), filter)
			if err != nil {
				return fail(formatter, wrapStoreError(err))
			}
			return formatter.Success(SavedQueryList(saved))
		},
	}

	cmd.Flags().StringVar(&opts.Grammar, "grammar", "", "only list queries of this grammar (rich|compact)")
	cmd.Flags().StringVar(&opts.Where, "where", "", "rich expression over name, grammar, expression, compiled, created_at")

	return cmd
}

func newQueryShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <name>",
		Short:         "Show a saved query",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)

			s, err := rootOpts.openStore()
			if err != nil {
				return fail(formatter, err)
			}
			defer s.Close()

			saved, err := s.Get(cmd.Context(), args[0])
			if err != nil {
				return fail(formatter, wrapStoreError(err))
			}
			return formatter.Success(SavedQueryDetail(saved))
		},
	}
}

// Deleted confirms a removed saved query.
type Deleted struct {
	Name    string `json:"name" yaml:"name"`
	Deleted bool   `json:"deleted" yaml:"deleted"`
}

func (d Deleted) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Deleted saved query %q\n", d.Name)
	return err
}

func newQueryDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <name>",
		Short:         "Delete a saved query",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)

			s, err := rootOpts.openStore()
			if err != nil {
				return fail(formatter, err)
			}
			defer s.Close()

			if err := s.Delete(cmd.Context(), args[0]); err != nil {
				return fail(formatter, wrapStoreError(err))
			}
			name, _ := store.NormalizeName(args[0])
			return formatter.Success(Deleted{Name: name, Deleted: true})
		},
	}
}

// wrapStoreError marks database failures so they map to the store error
// code. Query and lookup errors keep their own classification.
func wrapStoreError(err error) error {
	if err == nil {
		return nil
	}
	return &storeError{err}
}
