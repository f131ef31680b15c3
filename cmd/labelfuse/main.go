// Command labelfuse runs a simulated crowd-labelling session: a synthetic
// annotator pool labels a two-Gaussian example set, the consensus model is
// refit between selection rounds, and the active selector routes each new
// annotation request to the most informative example and the most
// reliable available labeller. Snapshots and the round log go to sqlite;
// convergence plots and an HTML report are optional.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"

	"github.com/crowd-data/labelfuse/internal/active"
	"github.com/crowd-data/labelfuse/internal/bootstrap"
	"github.com/crowd-data/labelfuse/internal/config"
	"github.com/crowd-data/labelfuse/internal/consensus"
	"github.com/crowd-data/labelfuse/internal/crowd"
	"github.com/crowd-data/labelfuse/internal/monitor"
	"github.com/crowd-data/labelfuse/internal/simulate"
	"github.com/crowd-data/labelfuse/internal/store"
)

func main() {
	var (
		nExamples   = flag.Int("examples", 50, "synthetic example count")
		nAnnotators = flag.Int("annotators", 8, "synthetic annotator count")
		seed        = flag.Int64("seed", 100, "simulation seed")
		warmup      = flag.Int("warmup", 10, "examples fully labelled before the first training pass")
		rounds      = flag.Int("rounds", 5, "selection rounds (one training pass each)")
		perRound    = flag.Int("per-round", 4, "selections per round")
		capFlag     = flag.Int("cap", 0, "redundancy cap per example (0 uses the tuning config default)")
		backend     = flag.String("backend", "consensus", "example scoring backend: consensus, uncertainty or minexperror")
		dbPath      = flag.String("db", "labelfuse.db", "sqlite database path (empty disables persistence)")
		configPath  = flag.String("config", "", "tuning config path (empty uses built-in defaults)")
		plotsDir    = flag.String("plots", "", "directory for convergence plots (empty disables)")
		reportPath  = flag.String("report", "", "HTML session report path (empty disables)")
	)
	flag.Parse()

	if err := run(*nExamples, *nAnnotators, *seed, *warmup, *rounds, *perRound, *capFlag,
		*backend, *dbPath, *configPath, *plotsDir, *reportPath); err != nil {
		log.Fatalf("labelfuse: %v", err)
	}
}

func run(nExamples, nAnnotators int, seed int64, warmup, rounds, perRound, redundancyCap int,
	backend, dbPath, configPath, plotsDir, reportPath string) error {
	ctx := context.Background()

	tuning, err := loadTuning(configPath)
	if err != nil {
		return err
	}
	trainerCfg := consensus.TrainerConfigFromTuning(tuning)
	if redundancyCap < 1 {
		redundancyCap = tuning.GetRedundancyCap()
	}

	pool, err := simulate.NewPool(nExamples, simulate.DefaultArchetypes(nAnnotators), seed)
	if err != nil {
		return err
	}
	matrix := crowd.NewLabelMatrix()

	// Warm-up: every annotator labels the first few examples so the
	// first training pass has signal for every labeller.
	if warmup > nExamples {
		warmup = nExamples
	}
	for t := 0; t < nAnnotators; t++ {
		for i := 0; i < warmup; i++ {
			label, err := pool.Annotate(t, i)
			if err != nil {
				return err
			}
			if err := matrix.Set(i, t, label); err != nil {
				return err
			}
		}
	}

	var (
		db        *store.Store
		sessionID string
	)
	if dbPath != "" {
		db, err = store.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		sessionID, err = db.CreateSession(len(pool.Examples[0].Features))
		if err != nil {
			return err
		}
		log.Printf("session %s -> %s", sessionID, dbPath)
	}

	var plotter *monitor.ConvergencePlotter
	if plotsDir != "" {
		plotter, err = monitor.NewConvergencePlotter(plotsDir)
		if err != nil {
			return err
		}
	}

	trainer := consensus.NewTrainer(trainerCfg)
	var (
		params    *consensus.Parameters
		result    *consensus.Result
		allRounds []active.SelectionRound
	)

	for pass := 1; pass <= rounds; pass++ {
		result, err = trainer.Fit(ctx, pool.Examples, matrix.Snapshot(), params)
		if err != nil {
			return fmt.Errorf("training pass %d: %w", pass, err)
		}
		params = result.Params
		log.Printf("pass %d: %d iterations, delta %.2e, converged=%v",
			pass, result.Iterations, result.FinalDelta, result.Converged)

		if db != nil {
			if err := db.SaveSnapshot(sessionID, pass, params); err != nil {
				return err
			}
		}
		if plotter != nil {
			if _, err := plotter.PlotPass(pass, result.History); err != nil {
				return err
			}
		}

		model, err := consensus.NewModel(params)
		if err != nil {
			return err
		}
		scorer, err := buildScorer(backend, model, pool, matrix, result.Posteriors, tuning)
		if err != nil {
			return err
		}
		selector, err := active.NewSelector(scorer, model, active.ConstantCap(redundancyCap), matrix, pool.Examples)
		if err != nil {
			return err
		}

		selector.BeginRound()
		for j := 0; j < perRound; j++ {
			round, err := selector.Next(ctx)
			if errors.Is(err, active.ErrExhaustedPool) {
				log.Printf("pass %d: example pool exhausted", pass)
				break
			}
			if errors.Is(err, active.ErrNoLabellerAvailable) {
				log.Printf("pass %d: no labeller left this round", pass)
				break
			}
			if err != nil {
				return err
			}

			label, err := pool.Annotate(round.LabellerID, round.ExampleIndex)
			if err != nil {
				return err
			}
			if err := matrix.Set(round.ExampleIndex, round.LabellerID, label); err != nil {
				return err
			}
			if db != nil {
				if err := db.AppendRound(sessionID, round); err != nil {
					return err
				}
			}
			allRounds = append(allRounds, *round)
			log.Printf("pass %d: example %d -> labeller %d (score %.4f)",
				pass, round.ExampleIndex, round.LabellerID, round.Score)
		}
	}

	// Final pass over everything collected.
	result, err = trainer.Fit(ctx, pool.Examples, matrix.Snapshot(), params)
	if err != nil {
		return fmt.Errorf("final training pass: %w", err)
	}
	params = result.Params

	acc, err := pool.Accuracy(result.Posteriors)
	if err != nil {
		return err
	}
	finalSnapshot := matrix.Snapshot()
	agreement := crowd.ComputeAgreement(finalSnapshot)
	log.Printf("final consensus accuracy vs ground truth: %.1f%% over %d examples (%d annotations)",
		acc*100, nExamples, finalSnapshot.TotalAnnotations())
	log.Printf("labeller agreement: %.1f%% across %d multi-labelled examples (%d disagreements)",
		agreement.AgreementRate*100, agreement.MultiLabelledCount, agreement.DisagreementCount)

	if plotter != nil {
		if _, err := plotter.PlotPosteriors(rounds+1, result.Posteriors); err != nil {
			return err
		}
	}

	if reportPath != "" {
		model, err := consensus.NewModel(params)
		if err != nil {
			return err
		}
		report := &monitor.SessionReport{
			SessionID:      sessionID,
			Model:          model,
			Posteriors:     result.Posteriors,
			Rounds:         allRounds,
			ReferencePoint: pool.Examples[0].Features,
		}
		if err := report.WriteHTML(reportPath); err != nil {
			return err
		}
		log.Printf("report written to %s", reportPath)
	}

	return nil
}

func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.MustLoadDefaultConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

// buildScorer wires the example-stage backend. The bootstrap backends
// train on the currently annotated examples with posterior-rounded
// labels, the black-box regime where no calibrated probability exists.
func buildScorer(backend string, model *consensus.Model, pool *simulate.Pool,
	matrix *crowd.LabelMatrix, posteriors []float64, tuning *config.TuningConfig) (active.Scorer, error) {
	switch backend {
	case "consensus":
		return active.NewConsensusScorer(model)
	case "uncertainty", "minexperror":
		features := make([][]float64, len(pool.Examples))
		labels := make([]int, len(pool.Examples))
		var trainIdx []int
		for i, ex := range pool.Examples {
			features[i] = ex.Features
			if posteriors[i] >= 0.5 {
				labels[i] = 1
			}
			if matrix.CountFor(ex.Index) > 0 {
				trainIdx = append(trainIdx, i)
			}
		}
		if len(trainIdx) == 0 {
			return nil, errors.New("bootstrap backend needs at least one annotated example")
		}

		est, err := bootstrap.NewEstimator(
			func() bootstrap.Classifier { return bootstrap.NewLogisticClassifier() },
			bootstrap.ConfigFromTuning(tuning),
		)
		if err != nil {
			return nil, err
		}
		if backend == "uncertainty" {
			return active.NewUncertaintyScorer(est, features, labels, trainIdx)
		}
		return active.NewMinExpErrorScorer(est, features, labels, trainIdx, trainIdx)
	default:
		return nil, fmt.Errorf("unknown backend %q (want consensus, uncertainty or minexperror)", backend)
	}
}
