package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smartenit-eu/smartenit-sub001/dtm"
	"github.com/smartenit-eu/smartenit-sub001/dtm/economic"
	"github.com/smartenit-eu/smartenit-sub001/dtm/inventory"
)

func newRefvecCmd() *cobra.Command {
	var (
		xValues  []int64 // Link traffic of the first two inventory links
		zValues  []int64 // Tunnel traffic of the first two inventory links
		sourceAS uint32  // AS number stamped on the result
	)
	c := &cobra.Command{
		Use:   "refvec",
		Short: "Compute one reference vector from link and tunnel totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(xValues) != 2 || len(zValues) != 2 {
				return fmt.Errorf("--x and --z take exactly two values, got %d and %d", len(xValues), len(zValues))
			}
			inv, err := inventory.Load(inventoryPath)
			if err != nil {
				return err
			}
			return printReferenceVector(cmd.OutOrStdout(), inv,
				[2]int64{xValues[0], xValues[1]}, [2]int64{zValues[0], zValues[1]}, sourceAS)
		},
	}
	c.Flags().Int64SliceVar(&xValues, "x", nil, "Comma-separated link traffic totals (link1,link2)")
	c.Flags().Int64SliceVar(&zValues, "z", []int64{0, 0}, "Comma-separated tunnel traffic totals (link1,link2)")
	c.Flags().Uint32Var(&sourceAS, "as", 1, "Source AS number")
	return c
}

// printReferenceVector computes the reference vector of the first two
// inventory links and prints it with its cost next to the cost of x.
func printReferenceVector(w io.Writer, inv *inventory.Inventory, x, z [2]int64, as uint32) error {
	ids := inv.LinkIDs()
	schedule, err := inv.TimeSchedule()
	if err != nil {
		return err
	}
	costs := make([]dtm.CostFunction, 2)
	for i := range costs {
		if costs[i], err = inv.CostFunction(ids[i]); err != nil {
			return err
		}
	}
	calc, err := economic.NewReferenceVectorCalculator(ids[0], ids[1], costs[0], costs[1], schedule.Tol1, schedule.Tol2)
	if err != nil {
		return err
	}
	r := calc.Calculate(x, z, as)
	costR, err := economic.VectorCost(costs, r)
	if err != nil {
		return err
	}
	costX, err := economic.VectorCost(costs, dtm.ReferenceVector{SourceAS: as, Values: []dtm.LocalValue{
		{Link: ids[0], Value: x[0]}, {Link: ids[1], Value: x[1]},
	}})
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "reference vector for AS %d\n", as)
	for i, v := range r.Values {
		fmt.Fprintf(&b, "  %-20s x=%-12d r=%d\n", v.Link.String(), x[i], v.Value)
	}
	fmt.Fprintf(&b, "cost of x: %s\n", costX.StringFixed(2))
	fmt.Fprintf(&b, "cost of r: %s\n", costR.StringFixed(2))
	fmt.Fprintf(&b, "saving:    %s\n", costX.Sub(costR).StringFixed(2))
	_, err = io.WriteString(w, b.String())
	return err
}
