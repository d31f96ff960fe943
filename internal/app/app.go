package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/specialistvlad/tilestackgo/internal/config"
	"github.com/specialistvlad/tilestackgo/internal/ctxlog"
	"github.com/specialistvlad/tilestackgo/internal/executor"
	"github.com/specialistvlad/tilestackgo/internal/failure"
	"github.com/specialistvlad/tilestackgo/internal/hclconfig"
	"github.com/specialistvlad/tilestackgo/internal/yamlconfig"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	settings *Config
	pipeline *config.Config

	ctx        context.Context
	tracker    *executor.Tracker
	httpServer *http.Server
}

// LoaderFor picks the configuration loader for paths: YAML when the first
// path is a .yaml or .yml file, HCL otherwise.
func LoaderFor(paths []string) config.Loader {
	if len(paths) > 0 && yamlconfig.IsYAML(paths[0]) {
		return yamlconfig.NewLoader()
	}
	return hclconfig.NewLoader()
}

// NewApp loads, overrides and validates the pipeline configuration. Reports
// go to outW and logs to logW. Any configuration problem is a ConfigError.
func NewApp(outW, logW io.Writer, settings *Config, loader config.Loader) (*App, error) {
	logger := newLogger(settings.LogLevel, settings.LogFormat, logW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	pipeline := config.Default()
	if len(settings.ConfigPaths) > 0 {
		var err error
		pipeline, err = loader.Load(ctx, settings.ConfigPaths...)
		if err != nil {
			return nil, err
		}
		logger.Debug("Configuration loaded.", "paths", settings.ConfigPaths)
	}
	settings.Overrides.Apply(pipeline)

	if err := pipeline.Validate(); err != nil {
		return nil, err
	}
	if pipeline.DatasetDir == "" {
		return nil, failure.Configf("app", "no dataset directory")
	}
	logger.Debug("Configuration validated.",
		"dataset_dir", pipeline.DatasetDir, "grid_size", pipeline.GridSize,
		"stride", pipeline.Stride, "workers", pipeline.Workers, "bands", pipeline.BandNames())

	return &App{
		outW:     outW,
		logger:   logger,
		settings: settings,
		pipeline: pipeline,
		ctx:      ctx,
	}, nil
}

// Pipeline returns the validated run configuration.
func (a *App) Pipeline() *config.Config {
	return a.pipeline
}

// Progress returns the live tracker of the current run, or nil before Run.
func (a *App) Progress() *executor.Tracker {
	return a.tracker
}
