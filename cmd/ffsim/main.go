// Command ffsim wires the simulator behind a Cobra CLI, the same
// rootCmd/runCmd split inference-sim/cmd/root.go uses for its own
// discrete-event simulator.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	ffsim "github.com/sarchlab/ffsim"
	"github.com/sarchlab/ffsim/internal/config"
	"github.com/sarchlab/ffsim/internal/ffsimlog"
	"github.com/sarchlab/ffsim/opset"
	"github.com/sarchlab/ffsim/simulator"
	"github.com/sarchlab/ffsim/topology"
)

var (
	configPath     string
	traceDir       string
	logLevel       string
	workspaceBytes int64
	maxNumTasks    int
	exportPath     string
	useNCCLFlag    bool
	overlapFlag    bool
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "ffsim",
	Short: "Predicts the per-iteration makespan of a parallelization strategy",
}

// runCmd loads a trace and a run configuration and prints the predicted
// makespan, the ffsim equivalent of triosim/triosim/main.go's
// trace-replay entry point.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Simulate one model under one strategy",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ffsimlog.Configure(logLevel); err != nil {
			return err
		}

		run, err := config.LoadRun(configPath)
		if err != nil {
			return err
		}

		layers, tensors, err := opset.LoadTrace(traceDir)
		if err != nil {
			return fmt.Errorf("loading trace from %q: %w", traceDir, err)
		}

		model, err := opset.BuildModel(layers, tensors)
		if err != nil {
			return err
		}
		model.SearchOverlapBackward = overlapFlag || run.OverlapBackwardUpdate

		strategy, err := run.Strategy.Resolve(model)
		if err != nil {
			return err
		}

		topo := topology.New(run.Machine.Topology())
		sim := simulator.New(topo, uintptr(workspaceBytes), maxNumTasks)

		mode := ffsim.Inference
		if run.Training {
			mode = ffsim.Training
		}

		logrus.Infof("simulating %d operators in %s mode across %d device(s)",
			len(model.Layers), mode, topo.TotalGPUs())

		makespan, err := sim.Simulate(model, strategy, mode, simulator.Options{
			UseNCCL:    useNCCLFlag || run.UseNCCL,
			ExportPath: exportPath,
		})
		if err != nil {
			return fmt.Errorf("simulating: %w", err)
		}

		fmt.Printf("predicted iteration time: %.9fs\n", makespan)
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "path to the run YAML (machine topology + strategy)")
	runCmd.Flags().StringVar(&traceDir, "trace-dir", "", "directory holding tensor.csv and trace.csv")
	runCmd.Flags().StringVar(&logLevel, "log", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().Int64Var(&workspaceBytes, "workspace-bytes", 1<<24, "scratch bytes available to the cost probe's synthetic tiles")
	runCmd.Flags().IntVar(&maxNumTasks, "max-tasks", 1<<16, "upper bound on tasks the scheduler's pool may allocate")
	runCmd.Flags().StringVar(&exportPath, "export", "", "optional path to write the scheduled task graph as Graphviz dot")
	runCmd.Flags().BoolVar(&useNCCLFlag, "nccl", false, "use the NCCL blocking-cost path instead of explicit weight-sync tasks")
	runCmd.Flags().BoolVar(&overlapFlag, "overlap-backward-update", false, "on the non-NCCL path, overlap weight-sync Update tasks with backward instead of bulk-synchronous barriers")

	_ = runCmd.MarkFlagRequired("config")
	_ = runCmd.MarkFlagRequired("trace-dir")

	rootCmd.AddCommand(runCmd)
}
