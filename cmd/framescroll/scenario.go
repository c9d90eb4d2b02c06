package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ivlev/framescroll/internal/director"
	"github.com/ivlev/framescroll/internal/engine"
)

const scenarioDir = "scenarios"

func newScenarioCommand(ctx *commandContext) *cobra.Command {
	var (
		output   string
		duration float64
		minDwell float64
		maxDwell float64
	)

	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Plan a scroll that stops at every reveal row and save it for export",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("duration") {
				duration = cfg.Export.Duration
			}

			d := director.NewDirector()
			d.MinDwell, d.MaxDwell = minDwell, maxDwell
			scenario, err := d.GenerateScenario(engine.Thresholds(cfg.Reveal), duration)
			if err != nil {
				return err
			}

			if output == "" {
				output = director.GenerateScenarioPath(scenarioDir, time.Now())
			}
			if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
				return err
			}
			if err := director.WriteScenario(scenario, output); err != nil {
				return err
			}

			rows := make([][]string, 0, len(scenario.Keyframes))
			for _, kf := range scenario.Keyframes {
				rows = append(rows, []string{
					strconv.FormatFloat(kf.Time, 'f', 2, 64),
					strconv.FormatFloat(kf.Progress, 'f', 3, 64),
					kf.Focus,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Time (s)", "Progress", "Focus"}, rows, []columnAlignment{alignRight, alignRight, alignLeft}))
			fmt.Fprintln(out, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Scenario file (default scenarios/scenario_<timestamp>.yaml)")
	cmd.Flags().Float64Var(&duration, "duration", 8, "Length of the scroll in seconds")
	cmd.Flags().Float64Var(&minDwell, "min-dwell", 0.5, "Shortest stop at a row in seconds")
	cmd.Flags().Float64Var(&maxDwell, "max-dwell", 2.0, "Longest stop at a row in seconds")
	return cmd
}
