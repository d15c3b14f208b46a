package preflight

import (
	"context"

	"hydralite/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	// Fatal marks checks whose failure prevents the daemon from starting.
	Fatal  bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Provider checks are skipped when offline is true.
func RunAll(ctx context.Context, cfg *config.Config, offline bool) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	for _, dir := range []struct{ name, path string }{
		{"Data directory", cfg.Paths.DataDir},
		{"Upload directory", cfg.Paths.UploadDir},
		{"Processed directory", cfg.Paths.ProcessedDir},
		{"Transcript directory", cfg.Paths.TranscriptDir},
		{"Summary directory", cfg.Paths.SummaryDir},
		{"Report directory", cfg.Paths.ReportDir},
		{"Log directory", cfg.Paths.LogDir},
	} {
		result := CheckDirectoryAccess(dir.name, dir.path)
		result.Fatal = true
		results = append(results, result)
	}

	results = append(results, CheckWatcherFromConfig(cfg))
	results = append(results, CheckFonts(cfg.Paths.FontsDir))

	if !offline {
		results = append(results, CheckTranscription(ctx, cfg.Transcription))
		results = append(results, CheckLLM(ctx, "Groq LLM", cfg.LLM))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
