package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/partiqlabs/partiq/cli/internal/config"
	"github.com/partiqlabs/partiq/cli/internal/wherelang"
	"github.com/partiqlabs/partiq/query"
	"github.com/partiqlabs/partiq/query/ast"
	"github.com/partiqlabs/partiq/query/executor"
	"github.com/partiqlabs/partiq/query/partiqlgen"
	"github.com/partiqlabs/partiq/runtime/client"
	"github.com/partiqlabs/partiq/telemetry"
)

type queryFlags struct {
	table        string
	where        string
	selects      []string
	orderBy      []string
	take         int32
	pageSize     int32
	noPagination bool
	paginate     bool
	region       string
	endpoint     string
	dryRun       bool
}

// NewQueryCommand builds the query subcommand.
func NewQueryCommand() *cobra.Command {
	var flags queryFlags

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a filtered query against a table",
		Example: `  partiq query --table orders --select pk --select total --where "total > 100"
  partiq query --table orders --select pk --where "begins_with(pk, 'order#')" --order-by total:desc --take 10
  partiq query --table orders --select pk --where "note = null" --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, &flags)
		},
	}

	cmd.Flags().StringVar(&flags.table, "table", "", "table to query (or PARTIQ_TABLE)")
	cmd.Flags().StringVar(&flags.where, "where", "", "filter expression, e.g. \"status = 'open' and total > 100\"")
	cmd.Flags().StringArrayVar(&flags.selects, "select", nil, "attribute to project (repeatable)")
	cmd.Flags().StringArrayVar(&flags.orderBy, "order-by", nil, "ordering key, attr or attr:desc (repeatable)")
	cmd.Flags().Int32Var(&flags.take, "take", 0, "maximum rows to return")
	cmd.Flags().Int32Var(&flags.pageSize, "page-size", 0, "items evaluated per request")
	cmd.Flags().BoolVar(&flags.noPagination, "no-pagination", false, "stop after the first page even if more exist")
	cmd.Flags().BoolVar(&flags.paginate, "paginate", false, "follow continuation tokens to exhaustion")
	cmd.Flags().StringVar(&flags.region, "region", "", "AWS region (or PARTIQ_REGION)")
	cmd.Flags().StringVar(&flags.endpoint, "endpoint", "", "endpoint override, e.g. a local store")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "print the statement without executing it")

	return cmd
}

func runQuery(cmd *cobra.Command, flags *queryFlags) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyConfig(flags, cfg)

	if flags.table == "" {
		return fmt.Errorf("no table: pass --table or set PARTIQ_TABLE")
	}
	if len(flags.selects) == 0 {
		return fmt.Errorf("no projection: pass --select at least once")
	}

	m, err := buildModel(flags)
	if err != nil {
		return err
	}

	if flags.dryRun {
		text, err := partiqlgen.RenderInline(m)
		if err != nil {
			return err
		}
		color.New(color.FgCyan).Fprintln(cmd.OutOrStdout(), text)
		return nil
	}

	stmt, err := partiqlgen.Render(m)
	if err != nil {
		return err
	}

	cl, err := client.Connect(cmd.Context(), client.ConnectOptions{
		Region:   flags.region,
		Endpoint: flags.endpoint,
	})
	if err != nil {
		return err
	}

	e := executor.Open(cl.Store(), stmt, m, executor.Options{
		Policy:    policyFor(flags),
		Telemetry: telemetry.New(nil),
	})

	remaining := flags.take
	count := 0
	out := cmd.OutOrStdout()
	for {
		row, ok, err := e.Next(cmd.Context())
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		var decoded map[string]any
		if err := attributevalue.UnmarshalMap(row, &decoded); err != nil {
			return fmt.Errorf("decode row: %w", err)
		}
		line, err := json.Marshal(decoded)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(line))
		count++
		if remaining > 0 {
			remaining--
			if remaining == 0 {
				break
			}
		}
	}

	color.New(color.FgGreen).Fprintf(cmd.ErrOrStderr(), "%d row(s), %d fetch(es)\n", count, e.Fetches())
	return nil
}

func applyConfig(flags *queryFlags, cfg *config.Config) {
	if flags.table == "" {
		flags.table = cfg.Table
	}
	if flags.region == "" {
		flags.region = cfg.Region
	}
	if flags.endpoint == "" {
		flags.endpoint = cfg.Endpoint
	}
	if flags.pageSize == 0 {
		flags.pageSize = cfg.PageSize
	}
}

func buildModel(flags *queryFlags) (*query.Model, error) {
	m := query.NewModel(flags.table)

	for _, sel := range flags.selects {
		m.AddProjection(ast.Prop(sel, nil), sel)
	}

	if flags.where != "" {
		pred, err := wherelang.Parse(flags.where)
		if err != nil {
			return nil, err
		}
		m.ApplyPredicate(pred)
	}

	for i, key := range flags.orderBy {
		attr, dir, _ := strings.Cut(key, ":")
		ascending := true
		switch strings.ToLower(dir) {
		case "", "asc":
		case "desc":
			ascending = false
		default:
			return nil, fmt.Errorf("bad --order-by direction %q (want asc or desc)", dir)
		}
		if i == 0 {
			m.ApplyOrdering(ast.Prop(attr, nil), ascending)
		} else {
			m.AppendOrdering(ast.Prop(attr, nil), ascending)
		}
	}

	if flags.take > 0 {
		m.ApplyOrCombineResultLimit(query.LimitOf(flags.take))
	}
	if flags.pageSize > 0 {
		m.ApplyPageSize(query.LimitOf(flags.pageSize))
	}

	if err := m.FinalizeProjections(nil); err != nil {
		return nil, err
	}
	return m, nil
}

func policyFor(flags *queryFlags) executor.Policy {
	switch {
	case flags.noPagination:
		return executor.PolicyNever
	case flags.paginate:
		return executor.PolicyAlways
	default:
		return executor.PolicyAuto
	}
}
