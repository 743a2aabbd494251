package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/klyr/eudoxus/internal/eudoxus"
)

func newInspectCmd() *cobra.Command {
	var showOutputs bool

	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Load a compiled automaton and print its shape",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := eudoxus.LoadFile(args[0])
			if err != nil {
				return err
			}

			dense, sinks := 0, 0
			for i := 0; i < a.NumStates(); i++ {
				s, ok := a.State(uint32(i))
				if !ok {
					break
				}
				if s.Dense() {
					dense++
				}
				if s.Sink() {
					sinks++
				}
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "version\t%d\n", a.Version())
			fmt.Fprintf(w, "fingerprint\t%s\n", a.Fingerprint())
			fmt.Fprintf(w, "states\t%d (%d dense, %d sparse, %d sink)\n", a.NumStates(), dense, a.NumStates()-dense, sinks)
			fmt.Fprintf(w, "outputs\t%d\n", a.NumOutputs())
			if showOutputs {
				fmt.Fprintln(w)
				fmt.Fprintln(w, "index\tid\tpriority\tlength\tdata")
				for i := 0; i < a.NumOutputs(); i++ {
					out, ok := a.Output(uint32(i))
					if !ok {
						break
					}
					fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%s\n", i, out.ID, out.Priority, out.Length, strconv.Quote(string(out.Data)))
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&showOutputs, "outputs", false, "List every output record")

	return cmd
}
