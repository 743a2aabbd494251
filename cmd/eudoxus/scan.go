package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/klyr/eudoxus/internal/eudoxus"
)

type scanRecord struct {
	Output   uint32 `json:"output"`
	ID       uint32 `json:"id"`
	Priority uint32 `json:"priority"`
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
	Data     string `json:"data,omitempty"`
}

func newScanCmd() *cobra.Command {
	var automatonPath string
	var operator string
	var inputPath string
	var chunkSize int

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Stream input through an automaton and print matches as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			if automatonPath == "" {
				return errors.New("automaton path is required")
			}
			policy, err := eudoxus.ParsePolicy(operator)
			if err != nil {
				return err
			}
			if chunkSize < 0 {
				return fmt.Errorf("chunk size must be >= 0, got %d", chunkSize)
			}

			a, err := eudoxus.LoadFile(automatonPath)
			if err != nil {
				return err
			}

			var in io.Reader = cmd.InOrStdin()
			if inputPath != "" && inputPath != "-" {
				file, err := os.Open(inputPath)
				if err != nil {
					return err
				}
				defer file.Close()
				in = file
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			return eudoxus.ScanReaderFunc(cmd.Context(), a, in, policy, chunkSize, func(m eudoxus.Match) error {
				return enc.Encode(scanRecord{
					Output:   m.Output,
					ID:       m.ID,
					Priority: m.Priority,
					Start:    m.Start(),
					End:      m.End,
					Data:     string(m.Data),
				})
			})
		},
	}

	cmd.Flags().StringVar(&automatonPath, "automaton", "", "Path to a compiled automaton")
	cmd.Flags().StringVar(&operator, "policy", eudoxus.OperatorAll, "Match policy: ee|ee_match")
	cmd.Flags().StringVar(&inputPath, "in", "", "Input file (default stdin)")
	cmd.Flags().IntVar(&chunkSize, "chunk", eudoxus.DefaultChunkSize, "Read size in bytes; 0 uses the default")

	return cmd
}
