package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/app"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/config"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/logger"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/models"
)

// Options are the global flags shared by every command
type Options struct {
	Actor  string
	Output string
}

type optionsKey struct{}

// WithOptions stores the global options on ctx
func WithOptions(ctx context.Context, opts Options) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, optionsKey{}, opts)
}

// OptionsFromContext returns the global options, or defaults if none were set
func OptionsFromContext(ctx context.Context) Options {
	if opts, ok := ctx.Value(optionsKey{}).(Options); ok {
		return opts
	}
	return Options{Output: "table"}
}

func (o Options) attribution() models.Attribution {
	return models.System(o.Actor)
}

// openApp loads configuration and connects the pipeline services
func openApp(ctx context.Context) (*app.App, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Server.Environment, cfg.Observability.LogLevel, "console")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	a, err := app.Open(ctx, cfg, log, nil)
	if err != nil {
		_ = log.Sync()
		return nil, nil, err
	}
	return a, log, nil
}

// render prints v as JSON, or calls table with a tabwriter
func render(w io.Writer, opts Options, v any, table func(tw *tabwriter.Writer)) error {
	if opts.Output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	table(tw)
	return tw.Flush()
}
