package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/NHMDenmark/NHMDlabelreader/internal/barcode"
	"github.com/NHMDenmark/NHMDlabelreader/internal/batch"
	"github.com/NHMDenmark/NHMDlabelreader/internal/config"
	"github.com/NHMDenmark/NHMDlabelreader/internal/imaging"
	"github.com/NHMDenmark/NHMDlabelreader/internal/ocr"
	"github.com/NHMDenmark/NHMDlabelreader/internal/orient"
	"github.com/NHMDenmark/NHMDlabelreader/internal/pipeline"
	"github.com/NHMDenmark/NHMDlabelreader/internal/segment"
)

const usage = `labelreader - find, rectify and read specimen labels on photographed sheets

Usage:
  labelreader run [flags] <image or directory>...
  labelreader watch [flags] <directory>
  labelreader config [-o file]
  labelreader version

Run "labelreader <command> -h" for the flags of a command.

Environment variables:
  LABELREADER_LOG_LEVEL=debug|info|warn    Log level (default info)
`

// CLI holds the flags shared by the run and watch commands.
type CLI struct {
	out io.Writer

	configPath string
	outputDir  string
	csvPath    string
	background string
	strategy   string
	noOCR      bool
	overlay    bool
	verbose    bool
}

func NewCLI(out io.Writer) *CLI {
	return &CLI{
		out:        out,
		configPath: "labelreader.yaml",
	}
}

// Run dispatches args to a command.
func (c *CLI) Run(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(c.out, usage)
		return errors.New("no command given")
	}

	switch args[0] {
	case "run":
		return c.runBatch(args[1:])
	case "watch":
		return c.runWatch(args[1:])
	case "config":
		return c.writeConfig(args[1:])
	case "version", "--version":
		fmt.Fprintf(c.out, "labelreader %s\n  Build time: %s\n  Git commit: %s\n", Version, BuildTime, GitCommit)
		return nil
	case "help", "--help", "-h":
		fmt.Fprint(c.out, usage)
		return nil
	}
	fmt.Fprint(c.out, usage)
	return fmt.Errorf("unknown command %q", args[0])
}

func (c *CLI) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("labelreader "+name, flag.ContinueOnError)
	fs.SetOutput(c.out)
	fs.StringVar(&c.configPath, "config", c.configPath, "YAML configuration file; missing means defaults")
	fs.StringVar(&c.outputDir, "output", "", "Output directory for crops (overrides output.dir)")
	fs.StringVar(&c.csvPath, "csv", "", "CSV file for merged rows (overrides output.csv)")
	fs.StringVar(&c.background, "background", "", "Sheet color: auto, red or blue (overrides background)")
	fs.StringVar(&c.strategy, "strategy", "", "Orientation strategy: moment or line (overrides orientation.strategy)")
	fs.BoolVar(&c.noOCR, "no-ocr", false, "Skip OCR; keys come from barcodes or label positions")
	fs.BoolVar(&c.overlay, "overlay", false, "Also save each photograph with the labels outlined")
	fs.BoolVar(&c.verbose, "v", false, "Debug logging")
	return fs
}

// setup loads the configuration, applies the flag overrides and builds the
// runner.
func (c *CLI) setup() (*batch.Runner, *config.Config, log.FieldLogger, error) {
	logger := newLogger(c.verbose)

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if c.outputDir != "" {
		cfg.Output.Dir = c.outputDir
	}
	if c.csvPath != "" {
		cfg.Output.CSV = c.csvPath
	}
	if c.background != "" {
		cfg.Background = c.background
		if kind, err := segment.ParseBackgroundKind(c.background); err == nil && kind == segment.Unknown {
			cfg.Segment.Hues = nil
		}
	}
	if c.strategy != "" {
		cfg.Orientation.Strategy = c.strategy
	}
	if c.noOCR {
		cfg.OCR.Enabled = false
	}
	if c.overlay {
		cfg.Output.Overlay = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	opts, err := cfg.Pipeline()
	if err != nil {
		return nil, nil, nil, err
	}
	if opts.Strategy == orient.Line {
		logger.WithField("marker_hues", opts.MarkerHues).Debug("orienting by marker stripe")
	}

	ropts := batch.Options{
		OutputDir: cfg.Output.Dir,
		Format:    cfg.Output.Format,
		Overlay:   cfg.Output.Overlay,
		CSVPath:   csvPath(cfg),
	}
	if formats := cfg.BarcodeFormats(); len(formats) > 0 {
		ropts.Keys = barcode.NewDecoder(formats...)
	}
	if cfg.OCR.Enabled {
		ropts.OCR = ocr.NewTesseract(cfg.OCR.Languages...)
		logger.WithFields(log.Fields{
			"tesseract": ocr.Version(),
			"languages": cfg.OCR.Languages,
		}).Debug("OCR enabled")
	}

	det := pipeline.New(opts, nil, logger)
	return batch.NewRunner(det, ropts, logger), cfg, logger, nil
}

// csvPath places a relative CSV name inside the output directory.
func csvPath(cfg *config.Config) string {
	if cfg.Output.CSV == "" || filepath.IsAbs(cfg.Output.CSV) {
		return cfg.Output.CSV
	}
	return filepath.Join(cfg.Output.Dir, cfg.Output.CSV)
}

func (c *CLI) runBatch(args []string) error {
	fs := c.flags("run")
	if err := fs.Parse(args); err != nil {
		return parseError(err)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("no images given")
	}

	paths, err := expandPaths(fs.Args())
	if err != nil {
		return err
	}

	runner, cfg, logger, err := c.setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	runErr := runner.Run(ctx, paths)
	if err := runner.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", csvPath(cfg), err)
	}

	logger.WithFields(log.Fields{
		"images":   len(paths),
		"rows":     runner.Table().Len(),
		"output":   cfg.Output.Dir,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Info("batch complete")
	return runErr
}

func (c *CLI) runWatch(args []string) error {
	fs := c.flags("watch")
	existing := fs.Bool("existing", false, "Process the images already in the directory first")
	settle := fs.Duration("settle", batch.DefaultSettle, "Quiet period before a new file is read")
	if err := fs.Parse(args); err != nil {
		return parseError(err)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("watch needs exactly one directory")
	}

	runner, _, logger, err := c.setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := &batch.Watcher{
		Dir:      fs.Arg(0),
		Settle:   *settle,
		Existing: *existing,
		Processed: func(rep *batch.Report, err error) {
			if err != nil || len(rep.Warnings) == 0 {
				return
			}
			logger.WithFields(log.Fields{
				"image":    filepath.Base(rep.Path),
				"warnings": len(rep.Warnings),
			}).Warn("image processed with warnings")
		},
	}

	err = w.Run(ctx, runner)
	if cerr := runner.Close(); cerr != nil {
		return cerr
	}
	if errors.Is(err, context.Canceled) {
		logger.WithField("rows", runner.Table().Len()).Info("watch stopped")
		return nil
	}
	return err
}

func (c *CLI) writeConfig(args []string) error {
	fs := flag.NewFlagSet("labelreader config", flag.ContinueOnError)
	fs.SetOutput(c.out)
	path := fs.String("o", "labelreader.yaml", "File to write the default configuration to")
	if err := fs.Parse(args); err != nil {
		return parseError(err)
	}
	if err := config.Save(config.Default(), *path); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Default configuration written to %s\n", *path)
	return nil
}

// parseError treats -h as a successful run; the flag package has already
// printed the usage.
func parseError(err error) error {
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	return fmt.Errorf("parsing flags: %w", err)
}

// expandPaths replaces directories by the images they contain, in name
// order. Files are kept in the order given.
func expandPaths(args []string) ([]string, error) {
	var out []string
	for _, a := range args {
		info, err := os.Stat(a)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, a)
			continue
		}
		entries, err := os.ReadDir(a)
		if err != nil {
			return nil, err
		}
		var dir []string
		for _, e := range entries {
			if !e.IsDir() && imaging.IsImageFile(e.Name()) {
				dir = append(dir, filepath.Join(a, e.Name()))
			}
		}
		sort.Strings(dir)
		out = append(out, dir...)
	}
	return out, nil
}

// newLogger logs text to stderr at the level from LABELREADER_LOG_LEVEL, or
// debug when verbose is set.
func newLogger(verbose bool) log.FieldLogger {
	l := log.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	l.SetLevel(log.InfoLevel)
	if lvl, err := log.ParseLevel(os.Getenv("LABELREADER_LOG_LEVEL")); err == nil {
		l.SetLevel(lvl)
	}
	if verbose {
		l.SetLevel(log.DebugLevel)
	}
	return l
}
