// Package exclusion loads the per-category subject exclusion list.
//
// The list is a YAML mapping from category (dwi, t2w, registration, ...) to
// the subject identifiers or file stems that must not contribute to that
// category. Category names are matched case-insensitively.
package exclusion

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// List holds exclusion entries keyed by lower-cased category.
type List struct {
	entries map[string]map[string]struct{}
}

// Empty returns a list that excludes nothing.
func Empty() *List {
	return &List{entries: map[string]map[string]struct{}{}}
}

// Load reads the YAML exclusion file at path. An empty path yields an empty
// list. A configured but missing file is an error.
func Load(path string) (*List, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Empty(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("exclusion file %s does not exist", path)
		}
		return nil, fmt.Errorf("read exclusion file: %w", err)
	}
	list, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse exclusion file %s: %w", path, err)
	}
	return list, nil
}

// Parse decodes exclusion YAML.
func Parse(data []byte) (*List, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	list := Empty()
	for category, ids := range raw {
		key := normalizeCategory(category)
		if key == "" {
			continue
		}
		set, ok := list.entries[key]
		if !ok {
			set = make(map[string]struct{}, len(ids))
			list.entries[key] = set
		}
		for _, id := range ids {
			if id = strings.TrimSpace(id); id != "" {
				set[id] = struct{}{}
			}
		}
	}
	return list, nil
}

// Excluded reports whether any of ids (subject identifier or file stem) is
// listed under category. A nil list excludes nothing.
func (l *List) Excluded(category string, ids ...string) bool {
	if l == nil {
		return false
	}
	set, ok := l.entries[normalizeCategory(category)]
	if !ok {
		return false
	}
	for _, id := range ids {
		if _, hit := set[strings.TrimSpace(id)]; hit {
			return true
		}
	}
	return false
}

// Categories returns the known categories in sorted order.
func (l *List) Categories() []string {
	if l == nil {
		return nil
	}
	out := make([]string, 0, len(l.entries))
	for category := range l.entries {
		out = append(out, category)
	}
	sort.Strings(out)
	return out
}

// Len returns the total number of entries across categories.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	total := 0
	for _, set := range l.entries {
		total += len(set)
	}
	return total
}

func normalizeCategory(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}
