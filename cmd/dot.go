package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/CraigKelly/tempering/model"
)

func newDotCmd(sp *startupParams) *cobra.Command {
	return &cobra.Command{
		Use:   "dot",
		Short: "Write the model's dependency graph in graphviz format",
		RunE: func(cmd *cobra.Command, args []string) error {
			return DotOutput(sp)
		},
	}
}

// DotOutput builds the selected model and writes a graphviz description of
// its dependency graph
func DotOutput(sp *startupParams) error {
	build, err := sp.builder(sp.randomSeed)
	if err != nil {
		return err
	}
	mod, err := build()
	if err != nil {
		return err
	}
	return writeDot(sp.out, mod)
}

func writeDot(w io.Writer, mod *model.Model) error {
	edges := mod.Edges()
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})

	if _, err := fmt.Fprintf(w, "digraph %q {\n", mod.Name); err != nil {
		return err
	}
	for _, v := range mod.Variables() {
		if v.Observed() {
			fmt.Fprintf(w, "    %q [shape=box];\n", v.Name())
		}
	}
	for _, e := range edges {
		fmt.Fprintf(w, "    %q -> %q;\n", e.From, e.To)
	}
	_, err := fmt.Fprintf(w, "}\n")
	return err
}
