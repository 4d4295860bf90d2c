package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"pairlab/internal/config"
	"pairlab/internal/engine"
	"pairlab/internal/storage"
	"pairlab/internal/system"
	"pairlab/internal/viz"
)

var (
	dataDir    string
	steps      int
	dt         float64
	fps        int
	configFile string
	preset     string
	negated    bool
	workers    int
	exampleN   int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pairlab",
		Short: "fixed-point nonbonded pair-list simulation lab",
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".pairlab", "data directory")

	evalCmd := &cobra.Command{
		Use:   "eval [system.yaml]",
		Short: "evaluate a system once and print energy, forces and parameter derivatives",
		Args:  cobra.ExactArgs(1),
		RunE:  evalSystem,
	}
	evalCmd.Flags().BoolVar(&negated, "negated", false, "subtract the pair contributions instead of adding them")

	runCmd := &cobra.Command{
		Use:   "run [system.yaml]",
		Short: "run a trajectory and save the result",
		Args:  cobra.ExactArgs(1),
		RunE:  runTrajectory,
	}
	runCmd.Flags().IntVar(&steps, "steps", config.DefaultSteps, "number of steps")
	runCmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "timestep")
	runCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	runCmd.Flags().StringVar(&preset, "preset", "", "use preset run settings")
	runCmd.Flags().IntVar(&workers, "workers", 0, "worker count for pair evaluation (0 = all cores)")

	liveCmd := &cobra.Command{
		Use:   "live [system.yaml]",
		Short: "run with a live terminal view",
		Args:  cobra.ExactArgs(1),
		RunE:  runLive,
	}
	liveCmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "timestep")
	liveCmd.Flags().IntVar(&fps, "fps", config.DefaultFPS, "frame rate")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list saved runs",
		RunE:  listRuns,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export a run's trajectory to CSV on stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	initCmd := &cobra.Command{
		Use:   "init [system.yaml]",
		Short: "write an example system file",
		Args:  cobra.ExactArgs(1),
		RunE:  initSystem,
	}
	initCmd.Flags().IntVar(&exampleN, "particles", 27, "number of particles in the example system")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list run presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range config.ListPresets() {
				cfg := config.GetPreset(name)
				fmt.Printf("  %-10s steps=%d dt=%g\n", name, cfg.Steps, cfg.Dt)
			}
			return nil
		},
	}

	rootCmd.AddCommand(evalCmd, runCmd, liveCmd, listCmd, exportCSVCmd, initCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func buildEngine(path string) (*system.System, *engine.Engine, error) {
	sys, err := system.Load(path)
	if err != nil {
		return nil, nil, err
	}
	nb, err := sys.Evaluator(negated)
	if err != nil {
		return nil, nil, err
	}
	nb.SetWorkers(workers)
	return sys, engine.New(sys.N(), nb), nil
}

func evalSystem(cmd *cobra.Command, args []string) error {
	sys, eng, err := buildEngine(args[0])
	if err != nil {
		return err
	}

	res, err := eng.Evaluate(sys.Frame())
	if err != nil {
		return err
	}

	fmt.Printf("system: %s (%d particles, %d pairs)\n", args[0], sys.N(), len(sys.Pairs))
	fmt.Printf("beta: %g  cutoff: %g\n\n", sys.Beta, sys.Cutoff)
	fmt.Printf("energy: %.12f\n\n", res.Energy)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PARTICLE\tFX\tFY\tFZ\tDU/DQ\tDU/DSIG\tDU/DEPS\tDU/DW")
	for i := 0; i < sys.N(); i++ {
		fmt.Fprintf(w, "%d\t%.6f\t%.6f\t%.6f\t%.6f\t%.6f\t%.6f\t%.6f\n",
			i,
			res.Forces[i*3], res.Forces[i*3+1], res.Forces[i*3+2],
			res.DuDP[i*4], res.DuDP[i*4+1], res.DuDP[i*4+2], res.DuDP[i*4+3],
		)
	}
	return w.Flush()
}

func runTrajectory(cmd *cobra.Command, args []string) error {
	if preset != "" {
		cfg := config.GetPreset(preset)
		if cfg == nil {
			return fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
		if !cmd.Flags().Changed("steps") {
			steps = cfg.Steps
		}
		if !cmd.Flags().Changed("dt") {
			dt = cfg.Dt
		}
	}
	if configFile != "" {
		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if !cmd.Flags().Changed("steps") {
			steps = cfg.Steps
		}
		if !cmd.Flags().Changed("dt") {
			dt = cfg.Dt
		}
		if !cmd.Flags().Changed("data") {
			dataDir = cfg.DataDir
		}
		if !cmd.Flags().Changed("workers") {
			workers = cfg.Workers
		}
	}

	sys, eng, err := buildEngine(args[0])
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	frame := sys.Frame()
	vel := make([]float64, sys.N()*3)

	fmt.Printf("running %d steps of %s...\n", steps, args[0])
	start := time.Now()

	result, err := eng.Run(context.Background(), frame, vel, sys.Masses(), engine.Config{Steps: steps, Dt: dt})
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	runID, err := st.Save(storage.RunMetadata{
		System:    args[0],
		Particles: sys.N(),
		PairCount: len(sys.Pairs),
		Dt:        dt,
		Beta:      sys.Beta,
		Cutoff:    sys.Cutoff,
	}, result)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("final energy: %.9f\n", result.FinalEnergy)
	fmt.Printf("energy drift: %.2e\n\n", result.EnergyDrift)

	energies := make([]float64, len(result.Records))
	for i, rec := range result.Records {
		energies[i] = rec.Energy
	}
	fmt.Println(asciigraph.Plot(energies,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption("total energy"),
	))
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	sys, eng, err := buildEngine(args[0])
	if err != nil {
		return err
	}

	m := viz.NewModel(eng, sys.Frame(), sys.Masses(), dt, fps, args[0])
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSYSTEM\tTIME\tPARTICLES\tSTEPS\tDT\tENERGY\tDRIFT")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.4g\t%.6f\t%.2e\n",
			run.ID,
			run.System,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Particles,
			run.Steps,
			run.Dt,
			run.FinalEnergy,
			run.EnergyDrift,
		)
	}
	return w.Flush()
}

func exportCSV(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	records, err := st.LoadRecords(args[0])
	if err != nil {
		return err
	}

	w := csv.NewWriter(os.Stdout)
	defer w.Flush()

	if err := w.Write([]string{"time", "energy", "max_force"}); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{
			strconv.FormatFloat(rec.Time, 'f', 6, 64),
			strconv.FormatFloat(rec.Energy, 'g', 12, 64),
			strconv.FormatFloat(rec.MaxForce, 'g', 12, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func initSystem(cmd *cobra.Command, args []string) error {
	sys := system.Example(exampleN)
	if err := sys.Save(args[0]); err != nil {
		return err
	}
	fmt.Printf("wrote %s: %d particles, %d pairs\n", args[0], sys.N(), len(sys.Pairs))
	return nil
}
