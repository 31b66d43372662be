package main

import (
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/twpayne/go-geom/encoding/wkt"

	"github.com/gis-ops/hannibal/internal/convert"
)

var polygonCmd = &cobra.Command{
	Use:   "polygon OSM_FILE ID",
	Short: "Print the outline of an OSM relation or closed way as WKT",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return eris.Wrapf(err, "parse ID %q", args[1])
		}

		poly, err := convert.ReadPolygon(cmd.Context(), args[0], id)
		if err != nil {
			return err
		}

		s, err := wkt.Marshal(poly)
		if err != nil {
			return eris.Wrap(err, "marshal WKT")
		}
		fmt.Fprintln(cmd.OutOrStdout(), s)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(polygonCmd)
}
