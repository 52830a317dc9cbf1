package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; provider and
// storage changes require a restart and are intentionally ignored.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RepairChanged is true when any repair tuning field changed.
	RepairChanged bool
	NewRepair     RepairConfig

	// AnalysisChanged is true when chunking or worker settings changed.
	AnalysisChanged bool
	NewAnalysis     AnalysisConfig
}

// Any reports whether the diff contains at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.RepairChanged || d.AnalysisChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Repair != new.Repair {
		d.RepairChanged = true
		d.NewRepair = new.Repair
	}

	if old.Analysis != new.Analysis {
		d.AnalysisChanged = true
		d.NewAnalysis = new.Analysis
	}

	return d
}
