package preflight

import (
	"fmt"
	"strings"

	"spinepipe/internal/config"
	"spinepipe/internal/exclusion"
)

// CheckExclusionsFromConfig loads the configured exclusion list and
// summarizes it.
func CheckExclusionsFromConfig(cfg *config.Config) Result {
	const name = "Exclusion list"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	path := strings.TrimSpace(cfg.Paths.ExcludeFile)
	if path == "" {
		return Result{Name: name, Passed: true, Detail: "Not configured"}
	}
	list, err := exclusion.Load(path)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	categories := list.Categories()
	if len(categories) == 0 {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (empty)", path)}
	}
	return Result{
		Name:   name,
		Passed: true,
		Detail: fmt.Sprintf("%s (%d entries: %s)", path, list.Len(), strings.Join(categories, ", ")),
	}
}

// CheckModelDirFromConfig reports whether the rootlets model checkout is
// configured and present.
func CheckModelDirFromConfig(cfg *config.Config) Result {
	const name = "Rootlets model"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	dir := strings.TrimSpace(cfg.Rootlets.ModelDir)
	if dir == "" {
		return Result{Name: name, Passed: true, Detail: "Not configured (rootlets pipeline unavailable)"}
	}
	return CheckDirectoryReadable(name, dir)
}
