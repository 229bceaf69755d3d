package results

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"gonum.org/v1/gonum/stat"

	"spinepipe/internal/config"
	"spinepipe/internal/exclusion"
	"spinepipe/internal/fileutil"
	"spinepipe/internal/logging"
)

// Header is the column layout shared by every metric table.
var Header = []string{"subject", "modality", "source", "level", "aggregation", "metric", "value", "age", "sex"}

// Row aggregations.
const (
	AggregationLevel = "level"
	AggregationMean  = "mean"
)

const defaultLockRetry = 50 * time.Millisecond

// Row is one line of a metric table.
type Row struct {
	Subject     string
	Modality    string
	Source      string
	Level       string
	Aggregation string
	Metric      string
	Value       float64
	Age         string
	Sex         string
}

func (r Row) record() []string {
	return []string{
		r.Subject,
		r.Modality,
		r.Source,
		r.Level,
		r.Aggregation,
		r.Metric,
		strconv.FormatFloat(r.Value, 'f', -1, 64),
		r.Age,
		r.Sex,
	}
}

// Key identifies whose rows are being appended. Exclusion matches either
// Subject or Stem under Category.
type Key struct {
	Subject  string
	Stem     string
	Category string
}

// Rows converts tool measurements into per-level rows.
func Rows(subject, modality, source string, measurements []Measurement) []Row {
	rows := make([]Row, 0, len(measurements))
	for _, m := range measurements {
		rows = append(rows, Row{
			Subject:     subject,
			Modality:    modality,
			Source:      source,
			Level:       m.Level,
			Aggregation: AggregationLevel,
			Metric:      m.Metric,
			Value:       m.Value,
		})
	}
	return rows
}

// Options configures an Aggregator.
type Options struct {
	Dir              string
	Mode             string
	ParticipantsPath string
	Exclusions       *exclusion.List
	Logger           *slog.Logger
	// LockRetry is the polling interval while waiting for a table lock.
	LockRetry time.Duration
}

// Aggregator appends rows to the metric tables.
type Aggregator struct {
	dir          string
	mode         string
	participants string
	exclusions   *exclusion.List
	logger       *slog.Logger
	lockRetry    time.Duration

	once         sync.Once
	demographics map[string]Demographics
}

// New constructs an aggregator.
func New(opts Options) *Aggregator {
	mode := opts.Mode
	if mode == "" {
		mode = config.ResultsModeAppend
	}
	retry := opts.LockRetry
	if retry <= 0 {
		retry = defaultLockRetry
	}
	return &Aggregator{
		dir:          opts.Dir,
		mode:         mode,
		participants: opts.ParticipantsPath,
		exclusions:   opts.Exclusions,
		logger:       logging.NewComponentLogger(opts.Logger, "results"),
		lockRetry:    retry,
	}
}

// FromConfig builds an aggregator from the run configuration.
func FromConfig(cfg *config.Config, exclusions *exclusion.List, logger *slog.Logger) *Aggregator {
	return New(Options{
		Dir:              cfg.Paths.Results,
		Mode:             cfg.Results.Mode,
		ParticipantsPath: cfg.ParticipantsPath(),
		Exclusions:       exclusions,
		Logger:           logger,
	})
}

// TablePath returns the CSV path of a table.
func (a *Aggregator) TablePath(table string) string {
	return filepath.Join(a.dir, table+".csv")
}

// Excluded reports whether key is on the exclusion list.
func (a *Aggregator) Excluded(key Key) bool {
	return a.exclusions.Excluded(key.Category, key.Subject, key.Stem)
}

// Append writes rows plus one mean row per (source, metric) to table. It
// returns the number of rows written. Excluded keys write nothing and return
// no error.
func (a *Aggregator) Append(ctx context.Context, key Key, table string, rows []Row) (int, error) {
	logger := logging.WithContext(ctx, a.logger).With(logging.String("table", table))
	if a.Excluded(key) {
		logger.Info("subject excluded, no rows appended",
			logging.String(logging.FieldEventType, "rows_excluded"),
			logging.String("category", key.Category),
		)
		return 0, nil
	}
	if len(rows) == 0 {
		logger.Warn("no measurements to append",
			logging.String(logging.FieldEventType, "rows_empty"),
			logging.String(logging.FieldErrorHint, "inspect the tool CSV for empty levels"),
		)
		return 0, nil
	}
	if strings.TrimSpace(a.dir) == "" {
		return 0, errors.New("results directory not configured")
	}

	all := withMeans(a.decorate(ctx, rows))
	path := a.TablePath(table)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create results dir: %w", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(ctx, a.lockRetry)
	if err != nil {
		return 0, fmt.Errorf("lock %s: %w", table, err)
	}
	if !locked {
		return 0, fmt.Errorf("lock %s: not acquired", table)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	switch a.mode {
	case config.ResultsModeReplaceSubject:
		err = replaceSubject(path, key.Subject, modalities(all), all)
	default:
		err = appendRows(path, all)
	}
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", table, err)
	}

	logger.Info("metric rows appended",
		logging.String(logging.FieldEventType, "rows_appended"),
		logging.Int("rows", len(all)),
		logging.String("mode", a.mode),
	)
	return len(all), nil
}

func (a *Aggregator) decorate(ctx context.Context, rows []Row) []Row {
	a.once.Do(func() {
		demographics, err := LoadParticipants(a.participants)
		if err != nil {
			attrs := []logging.Attr{logging.String("path", a.participants)}
			if !errors.Is(err, fs.ErrNotExist) {
				attrs = append(attrs, logging.Error(err))
			}
			logging.WarnWithContext(logging.WithContext(ctx, a.logger), "participants file unavailable, age and sex left empty",
				"participants_unavailable", attrs...)
		}
		a.demographics = demographics
	})

	out := make([]Row, len(rows))
	for i, row := range rows {
		if d, ok := a.demographics[row.Subject]; ok {
			row.Age = d.Age
			row.Sex = d.Sex
		}
		out[i] = row
	}
	return out
}

// withMeans appends, after the per-level rows, one mean row per
// (source, metric) in first-seen order.
func withMeans(rows []Row) []Row {
	type group struct {
		first  Row
		levels []string
		values []float64
	}
	var order []string
	groups := map[string]*group{}
	for _, row := range rows {
		if row.Aggregation == AggregationMean {
			continue
		}
		key := row.Source + "\x00" + row.Metric
		g, ok := groups[key]
		if !ok {
			g = &group{first: row}
			groups[key] = g
			order = append(order, key)
		}
		g.levels = append(g.levels, row.Level)
		g.values = append(g.values, row.Value)
	}

	out := append(make([]Row, 0, len(rows)+len(order)), rows...)
	for _, key := range order {
		g := groups[key]
		mean := g.first
		mean.Level = levelSpan(g.levels)
		mean.Aggregation = AggregationMean
		mean.Value = stat.Mean(g.values, nil)
		out = append(out, mean)
	}
	return out
}

// levelSpan renders the covered level range ("2:5"). Non-numeric levels fall
// back to first:last in row order.
func levelSpan(levels []string) string {
	if len(levels) == 0 {
		return ""
	}
	nums := make([]int, 0, len(levels))
	for _, level := range levels {
		n, err := strconv.Atoi(strings.TrimSpace(level))
		if err != nil {
			nums = nil
			break
		}
		nums = append(nums, n)
	}
	if nums != nil {
		sort.Ints(nums)
		if nums[0] == nums[len(nums)-1] {
			return strconv.Itoa(nums[0])
		}
		return fmt.Sprintf("%d:%d", nums[0], nums[len(nums)-1])
	}
	if levels[0] == levels[len(levels)-1] {
		return levels[0]
	}
	return levels[0] + ":" + levels[len(levels)-1]
}

func modalities(rows []Row) map[string]struct{} {
	out := map[string]struct{}{}
	for _, row := range rows {
		out[row.Modality] = struct{}{}
	}
	return out
}

func appendRows(path string, rows []Row) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(Header); err != nil {
			return err
		}
	}
	for _, row := range rows {
		if err := w.Write(row.record()); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// replaceSubject rewrites the table without the subject's previous rows for
// the given modalities, then appends rows.
func replaceSubject(path, subject string, mods map[string]struct{}, rows []Row) error {
	kept, err := readTable(path)
	if err != nil {
		return err
	}
	filtered := kept[:0]
	for _, record := range kept {
		if len(record) > 1 && record[0] == subject {
			if _, ok := mods[record[1]]; ok {
				continue
			}
		}
		filtered = append(filtered, record)
	}

	return fileutil.WriteFileAtomic(path, func(out io.Writer) error {
		w := csv.NewWriter(out)
		if err := w.Write(Header); err != nil {
			return err
		}
		if err := w.WriteAll(filtered); err != nil {
			return err
		}
		for _, row := range rows {
			if err := w.Write(row.record()); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	})
}

// readTable returns the data records of an existing table, without header.
func readTable(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) > 0 && len(records[0]) > 0 && records[0][0] == Header[0] {
		records = records[1:]
	}
	return records, nil
}
