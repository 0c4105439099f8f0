// Command holdout splits a CSV dataset by entity into train, validation and
// test subsets, compares the configured candidate models on the validation
// subset, and reports the test score of the one it selects.
//
// Usage:
//
//	holdout -config run.yaml [-data subjects.csv] [-seed 42] [-out dir] [-timeout 5m]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	"berkotech.co/holdout/dataset"
	"berkotech.co/holdout/pipeline"
)

func main() {
	var (
		configPath = flag.String("config", "", "run configuration `file` (YAML)")
		dataPath   = flag.String("data", "", "CSV `file`; overrides the configuration")
		seed       = flag.Int64("seed", -1, "random seed; overrides the configuration when >= 0")
		outDir     = flag.String("out", "", "write train/validation/test CSVs to `dir`")
		plotPath   = flag.String("plot", "", "save a chart of validation scores to `file` (.png, .svg, .pdf)")
		jsonPath   = flag.String("json", "", "write the report as JSON to `file`")
		residPath  = flag.String("residuals", "", "save a histogram of the selected candidate's validation residuals to `file`")
		timeout    = flag.Duration("timeout", 0, "abort fitting after this long")
		quiet      = flag.Bool("q", false, "do not log progress")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s -config run.yaml [flags]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()
	log.SetFlags(0)
	log.SetPrefix("holdout: ")
	if *configPath == "" || flag.NArg() > 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := loadConfig(*configPath)
	if *dataPath != "" {
		cfg.Data = *dataPath
	}
	if *seed >= 0 {
		cfg.RandomSeed = uint64(*seed)
	}
	if *outDir != "" {
		cfg.Output.Dir = *outDir
		cfg.Output.Subsets = true
	}
	if *plotPath != "" {
		cfg.Output.Plot = *plotPath
	}
	if *jsonPath != "" {
		cfg.Output.JSON = *jsonPath
	}
	if *residPath != "" {
		cfg.Output.Residuals = *residPath
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	if cfg.Data == "" {
		log.Fatal("no data file: set data in the configuration or pass -data")
	}

	f, err := os.Open(cfg.Data)
	if err != nil {
		log.Fatal(err)
	}
	d, err := dataset.Load(f, cfg.ID)
	f.Close()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	logger := log.Default()
	if *quiet {
		logger = nil
	}
	rep, runErr := pipeline.Run(ctx, cfg, d, logger)
	if rep != nil {
		if err := rep.WriteText(os.Stdout); err != nil {
			log.Fatal(err)
		}
		writeOutputs(cfg.Output, rep)
	}
	if runErr != nil {
		log.Fatal(runErr)
	}
}

func loadConfig(path string) pipeline.Config {
	f, err := os.Open(path)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	cfg, err := pipeline.LoadConfig(f)
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

func writeOutputs(out pipeline.Output, rep *pipeline.Report) {
	if out.JSON != "" {
		f, err := os.Create(out.JSON)
		if err != nil {
			log.Fatal(err)
		}
		if err := rep.WriteJSON(f); err != nil {
			log.Fatal(err)
		}
		if err := f.Close(); err != nil {
			log.Fatal(err)
		}
	}
	if out.Plot != "" {
		if err := rep.SavePlot(out.Plot); err != nil {
			log.Printf("plot: %v", err)
		}
	}
	if out.Residuals != "" && !rep.Metric.Classification() {
		if err := rep.SaveResiduals(out.Residuals); err != nil {
			log.Printf("residuals: %v", err)
		}
	}
}
