package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	epub "github.com/simp-lee/epubingest"
	"github.com/simp-lee/epubingest/internal/config"
	"github.com/simp-lee/epubingest/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:           "epubinfo",
	Short:         "Inspect ePub publications",
	Long:          "Parse, validate and extract resources from ePub 2 and ePub 3 files.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("env-file", ".env", "Path to .env file")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.String("log-format", "", "Log format (pretty, text, json)")
	pf.Bool("no-color", false, "Disable colored log output")
	pf.String("max-cache-size", "", "Resource cache budget (e.g. 50MB)")
	pf.String("cache-expiration", "", "Sliding cache expiration (e.g. 5m)")
	pf.String("max-concurrent", "", "Maximum concurrent archive reads")
	pf.String("buffer-size", "", "I/O chunk size (e.g. 8KiB)")
	pf.String("max-chapter-size", "", "Per-chapter size cap (e.g. 10MB)")
	pf.String("large-file-threshold", "", "Size at which files are memory-mapped (e.g. 50MB)")
	pf.String("non-linear", "", "Keep linear=\"no\" spine items as chapters (true/false)")
}

// env is the per-invocation configuration shared by subcommands.
type env struct {
	cfg  *config.Config
	log  *slog.Logger
	opts []epub.Option
}

func loadEnv(cmd *cobra.Command) (*env, error) {
	flag := func(name string) string {
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	cfg, err := config.Load(config.Flags{
		EnvFile:                  flag("env-file"),
		LogLevel:                 flag("log-level"),
		LogFormat:                flag("log-format"),
		MaxCacheSize:             flag("max-cache-size"),
		CacheExpiration:          flag("cache-expiration"),
		MaxConcurrentExtractions: flag("max-concurrent"),
		BufferSize:               flag("buffer-size"),
		MaxChapterSize:           flag("max-chapter-size"),
		LargeFileThreshold:       flag("large-file-threshold"),
		IncludeNonLinear:         flag("non-linear"),
	})
	if err != nil {
		return nil, err
	}
	noColor, _ := cmd.Flags().GetBool("no-color")
	log := logger.New(logger.Config{
		Writer:  cmd.ErrOrStderr(),
		Format:  cfg.Logger.Format,
		Level:   logger.ParseLevel(cfg.Logger.Level),
		NoColor: noColor,
	})
	return &env{cfg: cfg, log: log, opts: cfg.EpubOptions(log)}, nil
}

// describeError adds the missing component to structural parse errors.
func describeError(err error) string {
	if component, ok := epub.MissingComponent(err); ok {
		return fmt.Sprintf("%v (missing component: %s)", err, component)
	}
	var ve *epub.ValidationError
	if errors.As(err, &ve) {
		return "invalid ePub:\n  - " + strings.Join(ve.Problems, "\n  - ")
	}
	return err.Error()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "epubinfo:", describeError(err))
		stop()
		os.Exit(1)
	}
}
