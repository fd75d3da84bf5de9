package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mark47B/erp-portal/app/domain/entity"
	"github.com/mark47B/erp-portal/app/infrastructure/transport"
	"github.com/mark47B/erp-portal/app/usecase"
)

var (
	ctlAddr    string
	ctlTimeout time.Duration
	ctlFilters []string
)

var ctlCmd = &cobra.Command{
	Use:   "ctl",
	Short: "Talk to a portal node over CacheAdmin",
}

var ctlQueriesCmd = &cobra.Command{
	Use:   "queries",
	Short: "List cached queries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withAdmin(cmd, func(c *transport.CacheAdminClient) (any, error) {
			return c.ListQueries(cmd.Context())
		})
	},
}

var ctlInvalidateCmd = &cobra.Command{
	Use:   "invalidate KEY...",
	Short: "Invalidate key prefixes, each given as a JSON array",
	Example: `  erp ctl invalidate '["teams"]'
  erp ctl invalidate '["facturations","detail","42"]' '["facturations","list"]'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keys := make([]entity.QueryKey, 0, len(args))
		for _, a := range args {
			var k entity.QueryKey
			if err := json.Unmarshal([]byte(a), &k); err != nil {
				return fmt.Errorf("key %s: %w", a, err)
			}
			keys = append(keys, k)
		}
		return withAdmin(cmd, func(c *transport.CacheAdminClient) (any, error) {
			return map[string]int{"invalidated": len(keys)}, c.Invalidate(cmd.Context(), keys...)
		})
	},
}

var ctlFetchCmd = &cobra.Command{
	Use:     "fetch RESOURCE OP [ID]",
	Short:   "Read through a query hook of the portal",
	Example: `  erp ctl fetch teams list --filter search=ops
  erp ctl fetch facturations detail 42`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		rr := usecase.ReadRequest{Resource: args[0], Op: args[1]}
		if len(args) == 3 {
			rr.ID = args[2]
		}
		if len(ctlFilters) > 0 {
			rr.Filters = make(map[string]string, len(ctlFilters))
			for _, f := range ctlFilters {
				k, v, ok := strings.Cut(f, "=")
				if !ok {
					return fmt.Errorf("filter %q: want key=value", f)
				}
				rr.Filters[k] = v
			}
		}
		return withAdmin(cmd, func(c *transport.CacheAdminClient) (any, error) {
			return c.Fetch(cmd.Context(), rr)
		})
	},
}

func init() {
	ctlCmd.PersistentFlags().StringVar(&ctlAddr, "addr", "localhost:1234", "portal CacheAdmin address")
	ctlCmd.PersistentFlags().DurationVar(&ctlTimeout, "timeout", 30*time.Second, "request timeout")
	ctlFetchCmd.Flags().StringArrayVarP(&ctlFilters, "filter", "f", nil, "filter as key=value, repeatable")
	ctlCmd.AddCommand(ctlQueriesCmd, ctlInvalidateCmd, ctlFetchCmd)
}

func withAdmin(cmd *cobra.Command, call func(*transport.CacheAdminClient) (any, error)) error {
	conn, client, err := transport.DialCacheAdmin(ctlAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := contextWithTimeout(cmd, ctlTimeout)
	defer cancel()
	cmd.SetContext(ctx)

	out, err := call(client)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
