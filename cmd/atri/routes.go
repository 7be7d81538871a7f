package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/atrilabs/atri-runtime/pkg/state"
)

func routesCmd(configPath *string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List the routes and their initial state",
		Long: `List the routes the server would register, with the initial state
each session starts from (generated defaults merged with the app
definition).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defs, _, err := loadRoutes(context.Background(), cfg)
			if err != nil {
				return err
			}
			reg, err := buildRegistry(defs)
			if err != nil {
				return err
			}

			listing := make(map[string]state.Map, reg.Len())
			for _, p := range reg.Paths() {
				rt, _ := reg.Resolve(p)
				listing[p] = rt.Defaults
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(listing)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ROUTE\tKEYS")
			for _, p := range reg.Paths() {
				fmt.Fprintf(w, "%s\t%s\n", p, strings.Join(listing[p].Keys(), ", "))
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print routes and defaults as JSON")

	return cmd
}
