package preflight

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"spinepipe/internal/config"
	"spinepipe/internal/deps"
	"spinepipe/internal/toolbox"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.W_OK|unix.X_OK, "read/write ok")
}

// CheckDirectoryReadable verifies that the directory exists and can be listed.
func CheckDirectoryReadable(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.X_OK, "read ok")
}

func checkDirectory(name, path string, mode uint32, okDetail string) Result {
	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, okDetail)}
}

// CheckSystemDeps evaluates the toolbox binaries and the python interpreter.
// Rootlets model scripts are checked only when a model directory is set.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := make([]deps.Requirement, 0, len(deps.ToolboxBinaries)+1)
	for _, name := range deps.ToolboxBinaries {
		requirements = append(requirements, deps.Requirement{
			Name:        name,
			Command:     cfg.SCTBinary(name),
			Description: "Spinal Cord Toolbox",
			Hint:        deps.SCTInstallHint,
		})
	}
	requirements = append(requirements, deps.Requirement{
		Name:        "python",
		Command:     cfg.Toolbox.Python,
		Description: "Runs the rootlets model scripts",
		Hint:        "set toolbox.python to an interpreter with the model requirements",
		Optional:    cfg.Rootlets.ModelDir == "",
	})
	statuses := deps.CheckBinaries(requirements)

	if cfg.Rootlets.ModelDir != "" {
		for _, script := range []string{toolbox.ScriptZeroRootlets, toolbox.ScriptRootletsToLevels, toolbox.ScriptDiscsToVertebral} {
			statuses = append(statuses, deps.CheckScript(script, cfg.Rootlets.ModelDir, script))
		}
	}
	return statuses
}
