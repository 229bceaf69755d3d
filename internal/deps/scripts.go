package deps

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CheckScript reports whether a python script shipped with a model checkout
// exists. The script runs through the configured interpreter, so only
// presence is checked, not the executable bit.
func CheckScript(name, modelDir, relPath string) Status {
	result := Status{Requirement: Requirement{
		Name:        name,
		Description: "Rootlets model script",
		Hint:        "check out the rootlets model and set rootlets.model_dir",
		Optional:    true,
	}}
	modelDir = strings.TrimSpace(modelDir)
	if modelDir == "" {
		result.Detail = "model directory not configured"
		return result
	}
	path := filepath.Join(modelDir, filepath.FromSlash(relPath))
	result.Command = path
	info, err := os.Stat(path)
	if err != nil {
		result.Detail = withHint(fmt.Sprintf("script %q not found", relPath), result.Hint)
		return result
	}
	if info.IsDir() {
		result.Detail = fmt.Sprintf("%q is a directory", relPath)
		return result
	}
	result.Available = true
	return result
}
