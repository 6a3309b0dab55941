// Command survvalidate fits a proportional hazards risk model to a
// development cohort and reports optimism-corrected performance metrics
// from a bootstrap internal validation, optionally alongside external
// validation on a second cohort.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/daviemac78/Prediction-performance-survival/dataprep"
	"github.com/daviemac78/Prediction-performance-survival/survival"
	"github.com/daviemac78/Prediction-performance-survival/validate"
)

// runConfig is the yaml configuration of a validation run.
type runConfig struct {
	Development string   `yaml:"development"`
	Validation  string   `yaml:"validation"`
	TimeVar     string   `yaml:"time"`
	StatusVar   string   `yaml:"status"`
	Predictors  []string `yaml:"predictors"`

	B               int      `yaml:"b"`
	Horizon         float64  `yaml:"horizon"`
	HorizonShift    float64  `yaml:"horizon_shift"`
	Seed            uint64   `yaml:"seed"`
	Metrics         []string `yaml:"metrics"`
	AdminCensorTime float64  `yaml:"admin_censor_time"`
	Ties            string   `yaml:"ties"`
	Workers         int      `yaml:"workers"`

	KMPlot string `yaml:"km_plot"`
}

func loadConfig(path string) (*runConfig, error) {

	fid, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fid.Close()

	cfg := &runConfig{
		TimeVar:   "time",
		StatusVar: "event",
		B:         500,
		Horizon:   5,
	}
	dec := yaml.NewDecoder(fid)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadCohort(path, timevar, statusvar string) (*survival.Cohort, error) {

	fid, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fid.Close()

	return dataprep.FromCSV(fid, timevar, statusvar)
}

func main() {

	configPath := flag.String("config", "validate.yaml", "yaml run configuration")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.WithError(err).Fatal("cannot load configuration")
	}

	development, err := loadCohort(cfg.Development, cfg.TimeVar, cfg.StatusVar)
	if err != nil {
		log.WithError(err).Fatal("cannot load development cohort")
	}
	log.WithFields(logrus.Fields{
		"path": cfg.Development,
		"n":    development.NumObs(),
	}).Info("loaded development cohort")

	var validation *survival.Cohort
	if cfg.Validation != "" {
		validation, err = loadCohort(cfg.Validation, cfg.TimeVar, cfg.StatusVar)
		if err != nil {
			log.WithError(err).Fatal("cannot load validation cohort")
		}
		log.WithFields(logrus.Fields{
			"path": cfg.Validation,
			"n":    validation.NumObs(),
		}).Info("loaded validation cohort")
	}

	ties := survival.EfronTies
	if cfg.Ties == "breslow" {
		ties = survival.BreslowTies
	}

	var metrics []validate.Metric
	for _, m := range cfg.Metrics {
		metrics = append(metrics, validate.Metric(m))
	}

	eng, err := validate.New(validate.Config{
		B:               cfg.B,
		Horizon:         cfg.Horizon,
		HorizonShift:    cfg.HorizonShift,
		Seed:            cfg.Seed,
		Metrics:         metrics,
		Predictors:      cfg.Predictors,
		AdminCensorTime: cfg.AdminCensorTime,
		Ties:            ties,
		Workers:         cfg.Workers,
	})
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report, err := eng.Run(ctx, development, validation)
	if err != nil {
		log.WithError(err).Fatal("validation run failed")
	}

	log.WithFields(logrus.Fields{
		"run":         report.RunID,
		"effective_b": report.EffectiveB,
	}).Info("validation complete")

	os.Stdout.WriteString(report.String())

	if cfg.KMPlot != "" {
		dev := development
		if cfg.AdminCensorTime > 0 {
			dev = dev.AdminCensor(cfg.AdminCensorTime)
		}
		cp := survival.NewCurvePlotter()
		cp.Add(survival.FitSurvfunc(dev, false).Curve(), "Event-free survival")
		cp.Add(survival.FitSurvfunc(dev, true).Curve(), "Censoring distribution")
		if err := cp.Plot().Save(cfg.KMPlot); err != nil {
			log.WithError(err).Error("cannot save Kaplan-Meier plot")
		}
	}
}
