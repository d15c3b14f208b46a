package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"hydralite/internal/api"
	"hydralite/internal/config"
	"hydralite/internal/ingest"
	"hydralite/internal/jobs"
	"hydralite/internal/logging"
	"hydralite/internal/status"
	"hydralite/internal/testsupport"
)

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(*jobs.Job) {}

type cliTestEnv struct {
	cfg        *config.Config
	store      *jobs.Store
	status     *status.Store
	address    string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithToken("cli-token"))
	store := testsupport.MustOpenStore(t, cfg)
	statusStore := status.NewStore(cfg.Paths.StatusFile, 0, logging.NewNop())

	srv, err := api.NewServer(cfg, api.Deps{
		Registry:   store,
		Uploader:   ingest.NewIntake(cfg, store, logging.NewNop()),
		Dispatcher: noopDispatcher{},
		Status:     statusStore,
		Logger:     logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("api.NewServer: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		status:     statusStore,
		address:    strings.TrimPrefix(ts.URL, "http://"),
		configPath: testsupport.WriteConfigFile(t, cfg),
	}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--config", env.configPath}
	if env.address != "" {
		flags = append(flags, "--api", env.address)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestCLIStatusAndJobs(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	job := testsupport.NewJob(t, env.store, "c0ffee01_rounds", jobs.SourceWeb)
	job.Stage, job.Progress, job.Message = jobs.StageTranscribing, 20, "Transcribing audio..."
	if err := env.store.Update(ctx, job); err != nil {
		t.Fatalf("Update transcribing: %v", err)
	}
	job.Stage, job.Progress, job.Message = jobs.StageSummarizing, 60, "Generating summary..."
	job.Language = "hi"
	if err := env.store.Update(ctx, job); err != nil {
		t.Fatalf("Update summarizing: %v", err)
	}
	testsupport.NewJob(t, env.store, "c0ffee02_clinic", jobs.SourceBluetooth)
	if err := env.status.Write(status.Record{
		Source: "web", File: "c0ffee01_rounds", Stage: "summarizing",
		Message: "Generating summary...", Progress: 60, Language: "hi",
	}); err != nil {
		t.Fatalf("status write: %v", err)
	}

	out, err := runCLI(t, env, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"Running (v" + api.Version + ")", "c0ffee01_rounds: Generating summary... (60%)", "[INFO] hi"} {
		if !strings.Contains(out, want) {
			t.Fatalf("status output missing %q:\n%s", want, out)
		}
	}

	out, err = runCLI(t, env, "status", "c0ffee01_rounds")
	if err != nil {
		t.Fatalf("status job: %v", err)
	}
	if !strings.Contains(out, "summarizing (60%)") {
		t.Fatalf("unexpected job output:\n%s", out)
	}

	if _, err := runCLI(t, env, "status", "missing"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}

	out, err = runCLI(t, env, "jobs")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	if !strings.Contains(out, "c0ffee01_rounds") || !strings.Contains(out, "c0ffee02_clinic") {
		t.Fatalf("jobs output missing entries:\n%s", out)
	}

	out, err = runCLI(t, env, "jobs", "--stage", "queued", "--json")
	if err != nil {
		t.Fatalf("jobs --stage: %v", err)
	}
	if strings.Contains(out, "c0ffee01_rounds") || !strings.Contains(out, `"audio_name": "c0ffee02_clinic"`) {
		t.Fatalf("stage filter not applied:\n%s", out)
	}
}

func TestCLIQuarantineCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	out, err := runCLI(t, env, "quarantine", "list")
	if err != nil {
		t.Fatalf("quarantine list: %v", err)
	}
	if !strings.Contains(out, "Quarantine is empty") {
		t.Fatalf("unexpected empty output: %q", out)
	}

	entry, err := env.store.RecordFailure(ctx, jobs.Failure{
		JobID:        "d00d0001_ward",
		OriginalName: "ward.m4a",
		IntakePath:   filepath.Join(env.cfg.Paths.UploadDir, "d00d0001_ward.m4a"),
		Error:        "transcription failed",
	}, 3, time.Hour)
	if err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}

	out, err = runCLI(t, env, "quarantine", "list")
	if err != nil {
		t.Fatalf("quarantine list: %v", err)
	}
	if !strings.Contains(out, "ward.m4a") || !strings.Contains(out, "pending") {
		t.Fatalf("quarantine list missing entry:\n%s", out)
	}

	out, err = runCLI(t, env, "quarantine", "retry", strconv.FormatInt(entry.ID, 10))
	if err != nil {
		t.Fatalf("quarantine retry: %v", err)
	}
	if !strings.Contains(out, "Scheduled retry for ward.m4a") {
		t.Fatalf("unexpected retry output: %q", out)
	}
	updated, err := env.store.QuarantineByJob(ctx, entry.JobID)
	if err != nil || updated == nil {
		t.Fatalf("QuarantineByJob: %v", err)
	}
	if updated.NextRetryAt.After(time.Now().Add(time.Minute)) {
		t.Fatalf("expected retry to be due now, got %v", updated.NextRetryAt)
	}

	if _, err := runCLI(t, env, "quarantine", "retry", "99"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := runCLI(t, env, "quarantine", "retry", "abc"); err == nil || !strings.Contains(err.Error(), "invalid quarantine id") {
		t.Fatalf("expected invalid id error, got %v", err)
	}
}

func TestCLIRequiresToken(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.API.Token = ""
	env.configPath = testsupport.WriteConfigFile(t, env.cfg)

	_, err := runCLI(t, env, "jobs")
	if err == nil || !strings.Contains(err.Error(), "Not authenticated") {
		t.Fatalf("expected auth failure, got %v", err)
	}
}

func TestCLIConfigInitAndShow(t *testing.T) {
	env := setupCLITestEnv(t)
	env.address = ""
	target := filepath.Join(t.TempDir(), "nested", "hydralite.toml")

	out, err := runCLI(t, env, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, "Wrote sample configuration") {
		t.Fatalf("unexpected init output: %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config not written: %v", err)
	}
	if _, err := runCLI(t, env, "config", "init", "--path", target); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected overwrite protection, got %v", err)
	}

	out, err = runCLI(t, env, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "cli-token") {
		t.Fatalf("token leaked in config show:\n%s", out)
	}
	if !strings.Contains(out, "****") {
		t.Fatalf("expected masked secrets:\n%s", out)
	}

	out, err = runCLI(t, env, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") {
		t.Fatalf("unexpected validate output: %q", out)
	}
}

func TestCLITestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := runCLI(t, env, "test-notify")
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	if !strings.Contains(out, "Notifications disabled") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestCLIProcessRejectsUnsupportedFile(t *testing.T) {
	env := setupCLITestEnv(t)
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("not audio"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	env.cfg.Audio.FFmpegPath = "sh"
	env.configPath = testsupport.WriteConfigFile(t, env.cfg)

	_, err := runCLI(t, env, "process", path)
	if err == nil || !strings.Contains(err.Error(), "Invalid file format") {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestDialableAddress(t *testing.T) {
	cases := map[string]string{
		"0.0.0.0:8000":   "127.0.0.1:8000",
		":8000":          "127.0.0.1:8000",
		"10.0.0.5:9000":  "10.0.0.5:9000",
		"not-an-address": "not-an-address",
	}
	for input, want := range cases {
		if got := dialableAddress(input); got != want {
			t.Fatalf("dialableAddress(%q) = %q, want %q", input, got, want)
		}
	}
}
