package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/NHMDenmark/NHMDlabelreader/internal/correspond"
	"github.com/NHMDenmark/NHMDlabelreader/internal/imaging"
	"github.com/NHMDenmark/NHMDlabelreader/internal/ocr"
	"github.com/NHMDenmark/NHMDlabelreader/internal/pipeline"
	"github.com/NHMDenmark/NHMDlabelreader/internal/rectify"
	"github.com/NHMDenmark/NHMDlabelreader/internal/table"
)

// Options configures a Runner. Nil collaborators are skipped.
type Options struct {
	OCR    ocr.Reader
	Keys   KeyReader
	Parser FieldParser

	// OutputDir receives the crops and overlays; empty disables saving.
	OutputDir string
	// Format is the crop file suffix without the dot, "tif" by default.
	Format string
	// Overlay also saves each photograph with its labels outlined.
	Overlay bool
	// CSVPath is rewritten whenever new rows arrive; empty disables it.
	CSVPath string
}

// Report describes one processed photograph.
type Report struct {
	Path   string
	Result *pipeline.Result
	Cards  []correspond.Card
	// Rows are the rows this image completed.
	Rows []correspond.Row
	// Warnings are the detector's warnings plus any per-label and tracker
	// anomalies.
	Warnings []error
}

// Runner processes photographs in order. See the package documentation.
type Runner struct {
	detector *pipeline.Detector
	tracker  *correspond.Tracker
	table    *table.Table
	opts     Options
	log      logrus.FieldLogger
}

// NewRunner returns a Runner with a fresh tracker and table. A nil logger
// selects the logrus standard logger.
func NewRunner(detector *pipeline.Detector, opts Options, logger logrus.FieldLogger) *Runner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.Parser == nil {
		opts.Parser = TextParser{}
	}
	if opts.Format == "" {
		opts.Format = "tif"
	}
	return &Runner{
		detector: detector,
		tracker:  correspond.NewTracker(logger),
		table:    table.New(),
		opts:     opts,
		log:      logger,
	}
}

// Table returns the rows collected so far.
func (r *Runner) Table() *table.Table {
	return r.table
}

// Tracker exposes the correspondence state, mainly for diagnostics.
func (r *Runner) Tracker() *correspond.Tracker {
	return r.tracker
}

// Run processes paths in order until all are done or ctx is cancelled.
// Images that fail are logged and skipped; the returned error counts them.
func (r *Runner) Run(ctx context.Context, paths []string) error {
	failed := 0
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := r.ProcessFile(p); err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(paths))
	}
	return nil
}

// ProcessFile loads and processes one photograph.
//
// Only images that cannot be loaded or detected return an error. Protocol
// violations of the front/back order are logged at error level and recorded
// in the report; the rows they produce are kept.
func (r *Runner) ProcessFile(path string) (*Report, error) {
	log := r.log.WithField("image", filepath.Base(path))

	img, err := imaging.Load(path)
	if err != nil {
		log.WithError(err).Error("failed to load image")
		return nil, err
	}

	res, err := r.detector.Process(img)
	if err != nil {
		log.WithError(err).Error("failed to detect labels")
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	rep := &Report{Path: path, Result: res, Warnings: append([]error(nil), res.Warnings...)}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	for _, det := range res.Labels {
		card := r.card(log, rep, stem, res.Side, det)
		card.Fields["image"] = filepath.Base(path)
		// backs are named after the tracker hands them a key
		if res.Side != correspond.Back {
			r.saveCrop(log, rep, det.Label, card.Fields, card.Key, stem)
		}
		rep.Cards = append(rep.Cards, card)
	}

	if r.opts.Overlay && r.opts.OutputDir != "" {
		if err := r.saveOverlay(img, stem, res); err != nil {
			log.WithError(err).Warn("failed to save overlay")
			rep.Warnings = append(rep.Warnings, err)
		}
	}

	var rows []correspond.Row
	switch res.Side {
	case correspond.Front:
		rows, err = r.tracker.Front(rep.Cards)
	case correspond.Back:
		rows, err = r.tracker.Back(rep.Cards)
	default:
		err = fmt.Errorf("background %s is not mapped to a side", res.Background)
		log.WithError(err).Warn("labels not paired")
	}
	if errors.Is(err, correspond.ErrProtocolViolation) {
		log.WithError(err).Error("front/back order broken")
	}
	if err != nil {
		rep.Warnings = append(rep.Warnings, err)
	}

	if res.Side == correspond.Back {
		r.saveBackCrops(log, rep, rows, stem)
	}

	rep.Rows = rows
	if err := r.emit(rows); err != nil {
		log.WithError(err).Error("failed to write table")
		rep.Warnings = append(rep.Warnings, err)
	}

	log.WithFields(logrus.Fields{
		"side":   res.Side.String(),
		"labels": len(rep.Cards),
		"rows":   len(rows),
	}).Info("image done")
	return rep, nil
}

// card reads one label and names it if it is not a back.
func (r *Runner) card(log logrus.FieldLogger, rep *Report, stem string, side correspond.Side, det pipeline.Detection) correspond.Card {
	lbl := det.Label
	log = log.WithField("label", lbl.Region.ID)

	var lines [][]string
	if r.opts.OCR != nil {
		var err error
		if lines, err = r.opts.OCR.ReadLines(lbl.Image); err != nil {
			log.WithError(err).Warn("OCR failed")
			rep.Warnings = append(rep.Warnings, fmt.Errorf("label %d: %w", lbl.Region.ID, err))
		}
	}

	fields := r.opts.Parser.ParseFields(lines)
	if fields == nil {
		fields = map[string]string{}
	}

	// only fronts carry the key of a merged row
	if side != correspond.Back {
		key, source := r.readKey(lbl, lines, stem)
		lbl.Key = key
		fields["key_source"] = source
		log = log.WithField("key", key)
	}
	fields["label_id"] = strconv.Itoa(lbl.Region.ID)

	log.Debug("label read")
	return correspond.Card{Key: lbl.Key, Centroid: lbl.Region.Centroid, Fields: fields}
}

// saveCrop writes lbl under key, or its positional name when key is empty,
// and records the file name in fields.
func (r *Runner) saveCrop(log logrus.FieldLogger, rep *Report, lbl *rectify.RectifiedLabel, fields map[string]string, key, stem string) {
	if r.opts.OutputDir == "" {
		return
	}
	if key == "" {
		key = PositionalKey(stem, lbl.Region.ID)
	}
	p := imaging.UniquePath(filepath.Join(r.opts.OutputDir, fileSafe(key)+"."+r.opts.Format))
	if err := imaging.Save(lbl.Image, p); err != nil {
		log.WithError(err).WithField("label", lbl.Region.ID).Warn("failed to save crop")
		rep.Warnings = append(rep.Warnings, err)
		return
	}
	fields["crop"] = filepath.Base(p)
}

// saveBackCrops saves each back label under the key of the front it was
// matched to. Rows hold copies of the card fields, so both get the name.
func (r *Runner) saveBackCrops(log logrus.FieldLogger, rep *Report, rows []correspond.Row, stem string) {
	if r.opts.OutputDir == "" {
		return
	}
	byID := make(map[string]int, len(rep.Cards))
	for i, c := range rep.Cards {
		byID[c.Fields["label_id"]] = i
	}
	for _, row := range rows {
		if row.Back == nil {
			continue
		}
		i, ok := byID[row.Back["label_id"]]
		if !ok {
			continue
		}
		lbl := rep.Result.Labels[i].Label
		r.saveCrop(log, rep, lbl, row.Back, row.Key, stem)
		if crop, ok := row.Back["crop"]; ok {
			rep.Cards[i].Fields["crop"] = crop
		}
	}
}

// readKey tries the printed code, then the OCR text, then the position.
func (r *Runner) readKey(lbl *rectify.RectifiedLabel, lines [][]string, stem string) (key, source string) {
	if r.opts.Keys != nil {
		if k, err := r.opts.Keys.ReadKey(lbl.Image); err == nil && k != "" {
			return k, SourceBarcode
		}
	}
	if k := KeyFromLines(lines); k != "" {
		return k, SourceOCR
	}
	return PositionalKey(stem, lbl.Region.ID), SourcePosition
}

func (r *Runner) saveOverlay(img image.Image, stem string, res *pipeline.Result) error {
	out := imaging.Overlay(img, res.Outlines(), imaging.DefaultOverlayOptions())
	return imaging.Save(out, imaging.UniquePath(filepath.Join(r.opts.OutputDir, stem+"_overlay.png")))
}

// emit appends rows to the table and rewrites the CSV.
func (r *Runner) emit(rows []correspond.Row) error {
	if len(rows) == 0 {
		return nil
	}
	r.table.Append(rows...)
	if r.opts.CSVPath == "" {
		return nil
	}
	return r.table.WriteFile(r.opts.CSVPath)
}

// Close flushes a pending front, whose cards then appear without back
// fields, and writes the table a final time.
func (r *Runner) Close() error {
	rows := r.tracker.Flush()
	if len(rows) > 0 {
		r.log.WithField("rows", len(rows)).Warn("front without back at end of batch")
	}
	r.table.Append(rows...)
	if r.opts.CSVPath == "" {
		return nil
	}
	return r.table.WriteFile(r.opts.CSVPath)
}
