// Command vigil batch-trains the fatigue model from psychometric datasets.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/kelseyhightower/envconfig"

	"vigil/internal/buildinfo"
	vigil "vigil/internal/config"
	"vigil/internal/database"
	"vigil/internal/dataset"
	"vigil/internal/ensemble"
	"vigil/internal/logging"
	"vigil/internal/model"
	"vigil/internal/shutdown"
	"vigil/pkg/rworker"
	"vigil/pkg/vector"
)

const parseWorkers = 4

func main() {
	_, _ = fmt.Fprint(os.Stdout, buildinfo.Graffiti)
	_, _ = fmt.Fprintf(
		os.Stdout,
		"%s: %s, %s\n",
		buildinfo.Info.Name(),
		buildinfo.Info.Time(),
		buildinfo.Info.Tag(),
	)

	ctx, done := shutdown.New()
	logger := logging.FromContext(ctx)
	if err := run(ctx); err != nil {
		logger.Fatal(err)
	}

	defer done()
}

func run(ctx context.Context) error {
	var (
		data    = flag.String("data", "", "comma-separated dataset csv paths")
		dataDir = flag.String("data-dir", "", "directory scanned for *.csv datasets")
		seed    = flag.Uint("seed", 42, "preprocessing jitter seed")
		balance = flag.Int("balance", 0, "balance targets over N score bins, 0 disables")
		noise   = flag.Float64("noise", 0, "augmentation noise level, 0 disables")
	)
	flag.Parse()

	logger := logging.FromContext(ctx)

	paths, err := resolvePaths(*data, *dataDir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no datasets given, use -data or -data-dir")
	}

	config := vigil.Config{}
	if err := envconfig.Process("", &config); err != nil {
		return fmt.Errorf("error loading environment variables: %w", err)
	}

	db, err := database.NewFromEnv(ctx, config.DatabaseConfig())
	if err != nil {
		return fmt.Errorf("unable to open database: %w", err)
	}
	defer db.Close(ctx)

	store, err := model.NewStore(ctx, db, config.ModelConfig())
	if err != nil {
		return fmt.Errorf("model.NewStore: %w", err)
	}

	datasets, err := parseAll(paths)
	if err != nil {
		return err
	}

	pre := dataset.NewPreprocessor(uint32(*seed))
	var xs []vector.V
	var ys []float64
	for i, ds := range datasets {
		x, y, err := pre.Process(ds)
		if err != nil {
			return fmt.Errorf("preprocess %s: %w", paths[i], err)
		}
		xs = append(xs, x...)
		ys = append(ys, y...)

		stats := ds.Stats()
		logger.Infof(
			"dataset %s/%s: %d samples, %d participants, target %.1f..%.1f mean %.1f",
			ds.Organization, ds.Assessment,
			stats.Samples, stats.Participants,
			stats.TargetMin, stats.TargetMax, stats.TargetMean,
		)
	}

	if *balance > 0 {
		before := len(xs)
		xs, ys = pre.Balance(xs, ys, *balance)
		logger.Infof("balanced dataset: %d samples from %d", len(xs), before)
	}
	if *noise > 0 {
		xs = append(xs, pre.AddNoise(xs, *noise)...)
		ys = append(ys, ys...)
		logger.Infof("noise augmentation: %d samples total", len(xs))
	}

	ens, err := ensemble.New(ctx, store, ensemble.WithFeatureNames(dataset.FeatureNames()))
	if err != nil {
		return fmt.Errorf("ensemble.New: %w", err)
	}
	if err := ens.BatchTrain(ctx, xs, ys); err != nil {
		return fmt.Errorf("batch training: %w", err)
	}
	if err := ens.Save(ctx); err != nil {
		return fmt.Errorf("saving model: %w", err)
	}

	out, err := json.MarshalIndent(store.Stats(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	_, _ = fmt.Fprintf(os.Stdout, "%s\n", out)
	logger.Infof("trained on %d samples", ens.TotalSamples())

	return nil
}

func resolvePaths(data, dataDir string) ([]string, error) {
	var paths []string
	for _, p := range strings.Split(data, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	if dataDir != "" {
		found, err := filepath.Glob(filepath.Join(dataDir, "*.csv"))
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", dataDir, err)
		}
		paths = append(paths, found...)
	}
	sort.Strings(paths)
	return paths, nil
}

// parseAll loads every file on a bounded worker pool; results keep the input
// order so training stays deterministic.
func parseAll(paths []string) ([]*dataset.Dataset, error) {
	var (
		wg    sync.WaitGroup
		rate  = make(chan struct{}, parseWorkers)
		errCh = make(chan error, 1)
	)

	datasets := make([]*dataset.Dataset, len(paths))
	for i, path := range paths {
		rworker.Job(&wg, func() error {
			ds, err := dataset.Load(path)
			if err != nil {
				return err
			}
			datasets[i] = ds
			return nil
		}, rate, errCh)
	}
	wg.Wait()

	select {
	case err := <-errCh:
		return nil, err
	default:
	}
	return datasets, nil
}
