// Command trackgeom runs the track-geometry pipeline over a synthetic
// recording and prints a JSON summary. It is a development tool: it never
// reads measurement files.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/trackgeometry/internal/config"
	"github.com/banshee-data/trackgeometry/internal/db"
	"github.com/banshee-data/trackgeometry/internal/track"
	"github.com/banshee-data/trackgeometry/internal/track/analysis"
	"github.com/banshee-data/trackgeometry/internal/track/pipeline"
	"github.com/banshee-data/trackgeometry/internal/version"
	"github.com/banshee-data/trackgeometry/internal/worker"
)

var (
	configPath  = flag.String("config", "", "Path to a pipeline config JSON file (defaults are used when empty)")
	dbPath      = flag.String("db", "", "SQLite file to record the run in (optional)")
	rowCount    = flag.Int("rows", 800, "Number of synthetic rows to generate")
	spacing     = flag.Float64("spacing", 0.25, "Distance between synthetic rows in metres")
	noise       = flag.Float64("noise", 0.3, "Standard deviation of synthetic noise")
	seed        = flag.Uint64("seed", 1, "Seed for the synthetic generator")
	spikeRate   = flag.Float64("spike-rate", 0.005, "Fraction of rows that get an outlier spike")
	listRuns    = flag.Int("list-runs", 0, "Print the N most recent recorded runs and exit (requires -db)")
	versionFlag = flag.Bool("version", false, "Print version information and exit")
)

// options is everything run needs, resolved from flags.
type options struct {
	ConfigPath string
	DBPath     string
	Synth      track.SynthOptions
}

// runSummary is the JSON document printed after a run.
type runSummary struct {
	RunID            string                          `json:"runId"`
	Attempts         int                             `json:"attempts"`
	RawRows          int                             `json:"rawRows"`
	AggregatedRows   int                             `json:"aggregatedRows"`
	StraightnessRows int                             `json:"straightnessRows"`
	PlanarityRows    int                             `json:"planarityRows"`
	OutliersReplaced int                             `json:"outliersReplaced"`
	STAOffset        float64                         `json:"staOffset"`
	STAStart         float64                         `json:"staStart"`
	STAEnd           float64                         `json:"staEnd"`
	Channels         map[track.Channel]track.Summary `json:"channels"`
	Exceedances      map[analysis.Metric]int         `json:"exceedances"`
}

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.String("trackgeom"))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *listRuns > 0 {
		if *dbPath == "" {
			log.Fatal("-list-runs requires -db")
		}
		if err := printRuns(ctx, *dbPath, *listRuns, os.Stdout); err != nil {
			log.Fatalf("Failed to list runs: %v", err)
		}
		return
	}

	synth := track.DefaultSynthOptions()
	synth.Rows = *rowCount
	synth.Spacing = *spacing
	synth.Noise = *noise
	synth.Seed = *seed
	synth.SpikeRate = *spikeRate

	opts := options{ConfigPath: *configPath, DBPath: *dbPath, Synth: synth}
	if err := run(ctx, opts, os.Stdout); err != nil {
		log.Fatalf("trackgeom: %v", err)
	}
}

func loadConfig(path string) (*config.PipelineConfig, error) {
	if path == "" {
		return config.EmptyPipelineConfig(), nil
	}
	return config.LoadPipelineConfig(path)
}

// run generates rows, pushes them through a worker and writes the summary
// to out.
func run(ctx context.Context, opts options, out io.Writer) error {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	settings := pipeline.SettingsFromConfig(cfg)

	wopts := worker.Options{
		MaxRetries: cfg.GetMaxRetries(),
		RetryDelay: cfg.GetRetryDelay(),
		QueueSize:  cfg.GetQueueSize(),
	}
	if cfg.GetMaxRetries() == 0 {
		wopts.MaxRetries = -1
	}
	if opts.DBPath != "" {
		store, err := db.NewDB(opts.DBPath)
		if err != nil {
			return fmt.Errorf("open run store: %w", err)
		}
		defer store.Close()
		wopts.Recorder = store
	}

	w := worker.New(wopts)
	w.Start()
	defer w.Close()

	raw := track.Synthesize(opts.Synth)
	log.Printf("generated %d synthetic rows (seed %d)", len(raw), opts.Synth.Seed)

	f := w.RunPipeline(ctx, raw, settings)
	go func() {
		for p := range f.Progress() {
			log.Printf("run %s: aggregation %d%% (%d/%d buckets)", f.ID(), p.Percent, p.Processed, p.Total)
		}
	}()

	res, err := f.Wait(ctx)
	if err != nil {
		return fmt.Errorf("run %s: %w", f.ID(), err)
	}

	summary := summarize(f.ID(), f.Attempts(), len(raw), settings.STAOffset, res)
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

func summarize(id string, attempts, rawRows int, staOffset float64, res *pipeline.Result) runSummary {
	s := runSummary{
		RunID:            id,
		Attempts:         attempts,
		RawRows:          rawRows,
		AggregatedRows:   len(res.Aggregated),
		StraightnessRows: len(res.Straightness),
		PlanarityRows:    len(res.Planarity),
		OutliersReplaced: res.Outliers.Total(),
		STAOffset:        staOffset,
		Channels:         res.Summary,
		Exceedances:      make(map[analysis.Metric]int),
	}
	if p := res.Projected().Aggregated; p.Len() > 0 {
		rows := p.Rows()
		s.STAStart = rows[0].Travelled
		s.STAEnd = rows[len(rows)-1].Travelled
	}
	for metric, ex := range res.Exceedances(analysis.DefaultLimits()) {
		s.Exceedances[metric] = len(ex)
	}
	return s
}

func printRuns(ctx context.Context, path string, limit int, out io.Writer) error {
	store, err := db.NewDB(path)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(runs)
}
