package results

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// Demographics holds the participants.tsv fields merged into metric rows.
type Demographics struct {
	Age string
	Sex string
}

// LoadParticipants reads a BIDS participants.tsv. A missing file yields an
// empty map and fs.ErrNotExist so callers can decide whether to warn.
func LoadParticipants(path string) (map[string]Demographics, error) {
	out := map[string]Demographics{}
	if strings.TrimSpace(path) == "" {
		return out, fs.ErrNotExist
	}
	f, err := os.Open(path)
	if err != nil {
		return out, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	records, err := reader.ReadAll()
	if err != nil {
		return out, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return out, nil
	}

	header := records[0]
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	idIdx := indexOf(header, "participant_id")
	if idIdx < 0 {
		return out, errors.New("participants file has no participant_id column")
	}
	ageIdx := indexOf(header, "age")
	sexIdx := indexOf(header, "sex")

	for _, record := range records[1:] {
		if idIdx >= len(record) {
			continue
		}
		id := strings.TrimSpace(record[idIdx])
		if id == "" {
			continue
		}
		out[id] = Demographics{Age: cell(record, ageIdx), Sex: cell(record, sexIdx)}
	}
	return out, nil
}

func cell(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	value := strings.TrimSpace(record[idx])
	if value == "n/a" {
		return ""
	}
	return value
}
