package config_test

import (
	"testing"
	"time"

	"github.com/tickerlens/tickerlens/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(config.Default(), config.Default())
	if d.Any() {
		t.Errorf("expected empty diff for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if d.RepairChanged || d.AnalysisChanged {
		t.Errorf("unrelated sections flagged: %+v", d)
	}
}

func TestDiff_RepairChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Repair.SimilarityThreshold = 0.8
	new.Repair.LLMTimeout = config.Duration(time.Minute)

	d := config.Diff(old, new)
	if !d.RepairChanged {
		t.Fatal("expected RepairChanged=true")
	}
	if d.NewRepair.SimilarityThreshold != 0.8 {
		t.Errorf("NewRepair.SimilarityThreshold = %v, want 0.8", d.NewRepair.SimilarityThreshold)
	}
	if d.NewRepair.LLMTimeout.Std() != time.Minute {
		t.Errorf("NewRepair.LLMTimeout = %v, want 1m", d.NewRepair.LLMTimeout.Std())
	}
	if d.LogLevelChanged {
		t.Error("expected LogLevelChanged=false")
	}
}

func TestDiff_AnalysisChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Analysis.Workers = 16

	d := config.Diff(old, new)
	if !d.AnalysisChanged {
		t.Fatal("expected AnalysisChanged=true")
	}
	if d.NewAnalysis.Workers != 16 {
		t.Errorf("NewAnalysis.Workers = %d, want 16", d.NewAnalysis.Workers)
	}
	if !d.Any() {
		t.Error("expected Any=true")
	}
}

func TestDiff_ProviderChangeIgnored(t *testing.T) {
	t.Parallel()
	// Provider swaps require a restart and must not appear in the diff.
	old := config.Default()
	new := config.Default()
	new.Providers.LLM.Name = "anyllm"
	new.Storage.PostgresDSN = "postgres://localhost/other"

	d := config.Diff(old, new)
	if d.Any() {
		t.Errorf("provider and storage changes are not hot-reloadable, got %+v", d)
	}
}

func TestDiff_MultipleChanges(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.LogLevel = config.LogWarn
	new.Repair.EnableLLMRepair = false
	new.Analysis.ChunkSeconds = 60

	d := config.Diff(old, new)
	if !d.LogLevelChanged || !d.RepairChanged || !d.AnalysisChanged {
		t.Errorf("expected all sections flagged, got %+v", d)
	}
	if d.NewRepair.EnableLLMRepair {
		t.Error("expected NewRepair.EnableLLMRepair=false")
	}
}
