package config

const (
	defaultPython        = "python"
	defaultBatchJobs     = 1
	defaultLogFormat     = "console"
	defaultLogLevel      = "info"
	defaultResultsSubdir = "results/tables"
)

// defaultPropagate mirrors the steps whose manual corrections are routinely
// dropped into derivatives/labels by raters.
var defaultPropagate = []string{"sc_seg", "disc_labels"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Toolbox: Toolbox{
			Python: defaultPython,
		},
		Batch: Batch{
			Jobs: defaultBatchJobs,
		},
		Cache: Cache{
			DetectPartial: true,
		},
		Overrides: Overrides{
			Propagate: append([]string(nil), defaultPropagate...),
		},
		Results: Results{
			Mode: ResultsModeAppend,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
