package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/icu/icu/internal/scoring"
)

// severityInput is the offline calculator's severity file. Either all
// fourteen sub-scores or mediciones must be given; mediciones win.
type severityInput struct {
	scoring.SeverityPointsInput `yaml:",inline"`
	Measurements           *scoring.SeverityMeasurements `yaml:"mediciones"`
	SelectedRanges         map[string]string             `yaml:"rangosSeleccionados"`
}

func scoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Compute a score offline from a YAML or JSON file",
	}

	cmd.AddCommand(scoreSubCmd("severity", "Compute a severity score", func(data []byte) (interface{}, error) {
		var in severityInput
		if err := yaml.Unmarshal(data, &in); err != nil {
			return nil, err
		}
		if in.Measurements != nil {
			return scoring.ComputeSeverity(*in.Measurements)
		}
		return scoring.ScoreSeverityInput(in.SeverityPointsInput, in.SelectedRanges)
	}))

	cmd.AddCommand(scoreSubCmd("workload", "Compute a nursing workload score", func(data []byte) (interface{}, error) {
		// A flag map keeps unknown item keys visible to the engine.
		var flags map[string]bool
		if err := yaml.Unmarshal(data, &flags); err != nil {
			return nil, err
		}
		return scoring.ComputeWorkload(flags)
	}))

	cmd.AddCommand(scoreSubCmd("categorization", "Compute a patient categorization", func(data []byte) (interface{}, error) {
		var in scoring.CategorizationScores
		if err := yaml.Unmarshal(data, &in); err != nil {
			return nil, err
		}
		return scoring.ComputeCategorization(in)
	}))

	return cmd
}

// scoreSubCmd reads --file ("-" for stdin), runs compute and prints the
// result as indented JSON. Rejected input prints its violations and fails.
func scoreSubCmd(use, short string, compute func([]byte) (interface{}, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			data, err := readInput(cmd, file)
			if err != nil {
				return err
			}

			res, err := compute(data)
			out := json.NewEncoder(cmd.OutOrStdout())
			out.SetIndent("", "  ")
			if verr, ok := scoring.AsValidationError(err); ok {
				_ = out.Encode(map[string]interface{}{
					"reason":     verr.Reason,
					"violations": verr.Violations,
				})
				return fmt.Errorf("%s input rejected: %w", use, err)
			}
			if err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}
			return out.Encode(res)
		},
	}
	cmd.Flags().StringP("file", "f", "", "Input file (YAML or JSON, - for stdin)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readInput(cmd *cobra.Command, file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}
