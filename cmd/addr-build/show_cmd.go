package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"addr-hierarchy/internal/hierarchy"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newShowCmd(g *globalOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show <place-id>...",
		Short: "Print the ADDRESSES rows of the given places",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, a := range args {
				id, err := strconv.ParseInt(strings.TrimSpace(a), 10, 64)
				if err != nil {
					return withCode(exitUsage, errors.Errorf("invalid place id %q", a))
				}
				ids = append(ids, id)
			}
			switch format {
			case "text", "json", "yaml":
			default:
				return withCode(exitUsage, errors.Errorf("invalid --format %q", format))
			}
			cfg, _, err := g.setup()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			var rows []hierarchy.AddressView
			for _, id := range ids {
				r, err := st.PlaceRows(cmd.Context(), id)
				if err != nil {
					return withCode(exitDB, err)
				}
				rows = append(rows, r...)
			}
			return writeRows(cmd.OutOrStdout(), format, rows)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text|json|yaml")
	return cmd
}

func writeRows(w io.Writer, format string, rows []hierarchy.AddressView) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tYEARS\tBELONGS")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%d-%d\t%s\n", r.PlaceID, r.NameChn, r.BelongsFirst, r.BelongsLast, belongsText(r))
	}
	return tw.Flush()
}

// belongsText：逐级列出上级名称，未知层级以 ? 结尾
func belongsText(r hierarchy.AddressView) string {
	var parts []string
	for _, a := range r.Belongs {
		if a.ID == nil {
			parts = append(parts, "?")
			break
		}
		name := strconv.FormatInt(*a.ID, 10)
		if a.NameChn != nil && *a.NameChn != "" {
			name = *a.NameChn
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, " > ")
}
