package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"crashpipe/internal/gold"
	"crashpipe/internal/job"
)

func TestHealthHandler(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	healthHandler("cleaner").ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	var got healthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != "running" || got.Service != "cleaner" {
		t.Fatalf("health = %+v", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q", ct)
	}
}

func TestBuildJob(t *testing.T) {
	t.Parallel()
	a := &app{}
	a.cfg.Rabbit.TransformQueue = "transform"
	a.cfg.Rabbit.CleanQueue = "clean"
	a.cfg.Buckets.Xform = "transform-data"
	a.cfg.Buckets.Prefix = "crash"
	a.cfg.Gold.Table = "gold.crashes"

	j, q, err := a.buildJob(job.KindClean, "R1")
	if err != nil {
		t.Fatalf("buildJob: %v", err)
	}
	if q != "clean" || j.Clean == nil || j.Clean.CorrID != "R1" || j.Clean.GoldTable != "gold.crashes" {
		t.Fatalf("buildJob = %+v, %q", j, q)
	}
	if _, q, _ := a.buildJob(job.KindTransform, "R1"); q != "transform" {
		t.Fatalf("transform queue = %q", q)
	}
	if _, _, err := a.buildJob("extract", "R1"); !errors.Is(err, job.ErrUnknownType) {
		t.Fatalf("err = %v, want ErrUnknownType", err)
	}
}

func TestVerifyCommand_FreshStore(t *testing.T) {
	var stdout, stderr bytes.Buffer
	rc := newRootCommand(&stdout, &stderr)
	rc.SetArgs([]string{
		"verify",
		"--gold-store", "sqlite",
		"--gold-db-path", filepath.Join(t.TempDir(), "gold.db"),
		"--log-level", "error",
	})
	if err := rc.Execute(); err != nil {
		t.Fatalf("Execute: %v (stderr: %s)", err, stderr.String())
	}
	var rep gold.Report
	if err := json.Unmarshal(stdout.Bytes(), &rep); err != nil {
		t.Fatalf("decode report %q: %v", stdout.String(), err)
	}
	if !rep.Passed || rep.Rows != 0 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestRootCommand_RejectsInvalidConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	rc := newRootCommand(&stdout, &stderr)
	rc.SetArgs([]string{"verify", "--gold-store", "oracle"})
	err := rc.Execute()
	if err == nil || !strings.Contains(err.Error(), "configuration is invalid") {
		t.Fatalf("err = %v, want invalid configuration", err)
	}
}
