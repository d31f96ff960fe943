package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/specialistvlad/tilestackgo/internal/app"
	"github.com/specialistvlad/tilestackgo/internal/config"
	"github.com/specialistvlad/tilestackgo/internal/ctxlog"
	"github.com/specialistvlad/tilestackgo/internal/failure"
	"github.com/specialistvlad/tilestackgo/internal/report"
)

// Exit codes.
const (
	ExitFailed = 1 // at least one tile failed, was cancelled or is corrupt
	ExitUsage  = 2 // bad flags or configuration
)

// version is set at build time via -ldflags.
var version = "dev"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// exitCode maps err to an ExitError. Configuration problems are usage errors;
// anything else fails the run.
func exitCode(err error) error {
	var exitErr *ExitError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &exitErr):
		return exitErr
	case failure.IsConfig(err):
		return &ExitError{Code: ExitUsage, Message: err.Error()}
	default:
		return &ExitError{Code: ExitFailed, Message: err.Error()}
	}
}

type globalFlags struct {
	logLevel  string
	logFormat string
	markdown  bool
}

func (g *globalFlags) settings() app.Config {
	mode := report.ASCII
	if g.markdown {
		mode = report.Markdown
	}
	return app.Config{LogLevel: g.logLevel, LogFormat: g.logFormat, ReportMode: mode}
}

// NewRootCommand builds the tilestack command tree. Reports are written to
// outW and logs to errW.
func NewRootCommand(outW, errW io.Writer) *cobra.Command {
	var g globalFlags

	root := &cobra.Command{
		Use:   "tilestack",
		Short: "Assemble satellite acquisitions into per-tile training arrays",
		Long: "tilestack reads an acquisition table and per-band rasters, resamples every band\n" +
			"to a common grid, masks clouds and nodata, decimates the result and writes one\n" +
			"set of .npy arrays per tile.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}
	root.SetOut(outW)
	root.SetErr(errW)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: ExitUsage, Message: err.Error()}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&g.logLevel, "log-level", "info", "Logging level: 'debug', 'info', 'warn' or 'error'.")
	pf.StringVar(&g.logFormat, "log-format", "text", "Log output format: 'text' or 'json'.")
	pf.BoolVar(&g.markdown, "markdown", false, "Render report tables as Markdown.")

	root.AddCommand(newAssembleCommand(&g, errW))
	root.AddCommand(newVerifyCommand(&g, errW))
	root.AddCommand(newConvertCommand(&g, errW))
	return root
}

type runFlags struct {
	overrides       config.Overrides
	healthcheckPort int
}

func newAssembleCommand(g *globalFlags, errW io.Writer) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "assemble [CONFIG...]",
		Short: "Build the per-tile arrays for every tile in the acquisition table",
		Long: "CONFIG is an .hcl or .yaml file, or a directory of .hcl files. Without it the\n" +
			"built-in Sentinel-2 defaults are used. Tiles that already have output are skipped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := g.settings()
			settings.ConfigPaths = args
			settings.Overrides = f.overrides
			settings.HealthcheckPort = f.healthcheckPort

			a, err := newApp(cmd, errW, settings)
			if err != nil {
				return exitCode(err)
			}
			sum, err := a.Run(cmd.Context())
			if err != nil {
				return exitCode(err)
			}
			if !sum.OK() {
				return &ExitError{
					Code:    ExitFailed,
					Message: fmt.Sprintf("%d of %d tiles failed, %d cancelled", sum.Failed, sum.Total, sum.Cancelled),
				}
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.overrides.DatasetDir, "dataset-dir", "", "Dataset root holding the table and rasters (overrides the config).")
	fl.IntVar(&f.overrides.Workers, "workers", 0, "Tiles processed concurrently (0 keeps the configured value).")
	fl.IntVar(&f.overrides.Stride, "stride", 0, "Decimation stride (0 keeps the configured value).")
	fl.StringVar(&f.overrides.Baseline, "baseline", "", "Only use acquisitions of this processing baseline.")
	fl.IntVar(&f.healthcheckPort, "healthcheck-port", 0, "Port for the HTTP health and progress server. 0 is disabled.")
	return cmd
}

func newVerifyCommand(g *globalFlags, errW io.Writer) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "verify [CONFIG...]",
		Short: "Check every committed tile against its manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := g.settings()
			settings.ConfigPaths = args
			settings.Overrides = f.overrides

			a, err := newApp(cmd, errW, settings)
			if err != nil {
				return exitCode(err)
			}
			bad, err := a.Verify(cmd.Context())
			if err != nil {
				return exitCode(err)
			}
			if bad > 0 {
				return &ExitError{Code: ExitFailed, Message: fmt.Sprintf("%d tiles are corrupt", bad)}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.overrides.DatasetDir, "dataset-dir", "", "Dataset root holding the processed tiles (overrides the config).")
	return cmd
}

func newConvertCommand(g *globalFlags, errW io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "convert DIR",
		Short: "Write the acquisition table from a directory of STAC item JSON files",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := app.NewConfig(g.settings())
			if err != nil {
				return &ExitError{Code: ExitUsage, Message: err.Error()}
			}
			ctx := ctxlog.WithLogger(cmd.Context(), app.NewLogger(settings, errW))

			path, n, err := app.Convert(ctx, args[0])
			if err != nil {
				return exitCode(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d acquisitions to %s\n", n, path)
			return nil
		},
	}
}

// usageArgs turns positional argument errors into usage exit errors.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return &ExitError{Code: ExitUsage, Message: err.Error()}
		}
		return nil
	}
}

func newApp(cmd *cobra.Command, errW io.Writer, settings app.Config) (*app.App, error) {
	cfg, err := app.NewConfig(settings)
	if err != nil {
		return nil, &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	return app.NewApp(cmd.OutOrStdout(), errW, cfg, app.LoaderFor(cfg.ConfigPaths))
}
