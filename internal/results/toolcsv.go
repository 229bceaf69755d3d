package results

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Measurement is one metric value at one level, as read from a tool CSV.
type Measurement struct {
	Level  string
	Metric string
	Value  float64
}

// ProcessSegmentationMetrics renames sct_process_segmentation columns.
var ProcessSegmentationMetrics = map[string]string{
	"MEAN(area)":         "CSA",
	"MEAN(diameter_AP)":  "AP_diameter",
	"MEAN(diameter_RL)":  "RL_diameter",
	"MEAN(eccentricity)": "eccentricity",
	"MEAN(solidity)":     "solidity",
}

// ExtractMetricColumn is the value column sct_extract_metric writes for
// -method map.
const ExtractMetricColumn = "MAP()"

// levelColumns are tried in order to locate the level column.
var levelColumns = []string{"VertLevel", "SpinalLevel", "spinal_level", "vertebral_level", "level", "Level"}

// ErrNoLevelColumn reports a tool CSV without a recognizable level column.
var ErrNoLevelColumn = errors.New("no level column")

// ParseToolCSV reads a CSV written by a toolbox command. Columns named in
// mapping become metrics under the mapped name. With an empty mapping every
// column holding numbers (other than the level column) becomes a metric.
// Empty and non-numeric cells are skipped.
func ParseToolCSV(path string, mapping map[string]string) ([]Measurement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: empty file", path)
		}
		return nil, fmt.Errorf("%s: read header: %w", path, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	levelIdx := -1
	for _, name := range levelColumns {
		if idx := indexOf(header, name); idx >= 0 {
			levelIdx = idx
			break
		}
	}
	if levelIdx < 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoLevelColumn)
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	columns := metricColumns(header, levelIdx, mapping, records)
	var out []Measurement
	for _, record := range records {
		if levelIdx >= len(record) {
			continue
		}
		level := strings.TrimSpace(record[levelIdx])
		if level == "" {
			continue
		}
		for _, col := range columns {
			if col.index >= len(record) {
				continue
			}
			value, ok := parseNumber(record[col.index])
			if !ok {
				continue
			}
			out = append(out, Measurement{Level: level, Metric: col.metric, Value: value})
		}
	}
	return out, nil
}

type metricColumn struct {
	index  int
	metric string
}

func metricColumns(header []string, levelIdx int, mapping map[string]string, records [][]string) []metricColumn {
	var cols []metricColumn
	if len(mapping) > 0 {
		for i, name := range header {
			if metric, ok := mapping[name]; ok && i != levelIdx {
				cols = append(cols, metricColumn{index: i, metric: metric})
			}
		}
		return cols
	}
	for i, name := range header {
		if i == levelIdx || name == "" {
			continue
		}
		if numericColumn(records, i) {
			cols = append(cols, metricColumn{index: i, metric: name})
		}
	}
	return cols
}

// numericColumn reports whether every non-empty cell of the column parses as
// a number and at least one cell is present.
func numericColumn(records [][]string, idx int) bool {
	seen := false
	for _, record := range records {
		if idx >= len(record) {
			continue
		}
		cell := strings.TrimSpace(record[idx])
		if cell == "" {
			continue
		}
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			return false
		}
		seen = true
	}
	return seen
}

func parseNumber(cell string) (float64, bool) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func indexOf(values []string, target string) int {
	for i, v := range values {
		if v == target {
			return i
		}
	}
	return -1
}
