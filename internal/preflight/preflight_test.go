package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"hydralite/internal/config"
	"hydralite/internal/language"
	"hydralite/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckTranscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Invalid API key"}`))
			return
		}
		_, _ = w.Write([]byte(`{"transcripts":[]}`))
	}))
	defer srv.Close()

	if result := CheckTranscription(context.Background(), config.Transcription{APIKey: "good-key", BaseURL: srv.URL}); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result := CheckTranscription(context.Background(), config.Transcription{APIKey: "bad-key", BaseURL: srv.URL}); result.Passed {
		t.Fatal("expected failure for bad key")
	}
	if result := CheckTranscription(context.Background(), config.Transcription{}); result.Passed || result.Detail != "API key missing" {
		t.Fatalf("expected missing key failure, got %+v", result)
	}
}

func TestCheckLLM_MissingKey(t *testing.T) {
	result := CheckLLM(context.Background(), "Groq LLM", config.LLM{})
	if result.Passed {
		t.Fatal("expected failure for missing key")
	}
}

func TestCheckFonts(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFonts(dir); result.Passed {
		t.Fatal("expected failure for empty fonts dir")
	}
	for _, code := range language.Codes() {
		if file := language.FontFile(code); file != "" {
			if err := os.WriteFile(filepath.Join(dir, file), []byte("ttf"), 0o644); err != nil {
				t.Fatal(err)
			}
		}
	}
	if result := CheckFonts(dir); !result.Passed {
		t.Fatalf("expected pass once fonts exist, got: %s", result.Detail)
	}
}

func TestCheckWatcherFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if result := CheckWatcherFromConfig(cfg); !result.Passed || result.Detail != "Disabled" {
		t.Fatalf("expected disabled watcher to pass, got %+v", result)
	}
	cfg.Watcher.Enabled = true
	if result := CheckWatcherFromConfig(cfg); result.Passed {
		t.Fatal("expected failure while the drop directory is missing")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, true); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_OfflineConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	results := RunAll(context.Background(), cfg, true)
	// Seven directories, the watcher and the fonts.
	if len(results) != 9 {
		t.Fatalf("expected 9 results, got %d", len(results))
	}
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Report fonts" || failed[0].Fatal {
		t.Fatalf("expected only the non-fatal font check to fail, got %+v", failed)
	}
}
