package quota

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeFakeServer writes an executable shell script standing in for the
// codex binary.
func writeFakeServer(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "codex")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write fake server: %v", err)
	}
	return path
}

// respondingServer answers every request line with the given printf template;
// %s is replaced by the request id extracted from the line.
func respondingServer(t *testing.T, template string) string {
	t.Helper()
	return writeFakeServer(t, `while read line; do
  id=$(printf '%s\n' "$line" | sed -n 's/.*"id":"\([^"]*\)".*/\1/p')
  printf '`+template+`\n' "$id"
done
`)
}

func probeErrorKind(t *testing.T, err error) ErrorKind {
	t.Helper()
	var probeErr *ProbeError
	if !errors.As(err, &probeErr) {
		t.Fatalf("expected *ProbeError, got %v", err)
	}
	return probeErr.Kind
}

func TestProbeReadsRateLimits(t *testing.T) {
	bin := respondingServer(t,
		`{"id":"%s","result":{"rateLimits":{"primary":{"usedPercent":10,"windowDurationMins":300},"secondary":{"usedPercent":40,"windowDurationMins":10080}}}}`)
	client := &Client{codexBin: bin, timeout: 5 * time.Second}

	result, err := client.Probe(context.Background(), t.TempDir(), nil)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if result.FiveHour == nil || *result.FiveHour.UsedPercent != 10 {
		t.Errorf("five_hour = %+v", result.FiveHour)
	}
	if result.Weekly == nil || *result.Weekly.UsedPercent != 40 {
		t.Errorf("weekly = %+v", result.Weekly)
	}
	if result.RawText == "" {
		t.Error("raw text is empty")
	}
}

func TestProbeClassifiesRPCError(t *testing.T) {
	bin := respondingServer(t,
		`{"id":"%s","error":{"code":-32601,"message":"method not found"}}`)
	client := &Client{codexBin: bin, timeout: 5 * time.Second}

	_, err := client.Probe(context.Background(), t.TempDir(), nil)
	if kind := probeErrorKind(t, err); kind != KindUnsupported {
		t.Errorf("kind = %q, want %q", kind, KindUnsupported)
	}
}

func TestProbeTimesOut(t *testing.T) {
	bin := writeFakeServer(t, "sleep 10\n")
	client := &Client{codexBin: bin, timeout: 300 * time.Millisecond}

	start := time.Now()
	_, err := client.Probe(context.Background(), t.TempDir(), nil)
	if kind := probeErrorKind(t, err); kind != KindTimeout {
		t.Errorf("kind = %q, want %q", kind, KindTimeout)
	}
	// The call returns around the timeout plus the shutdown grace, well
	// before the child's sleep would finish.
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("probe took %v, child was not reaped", elapsed)
	}
}

func TestProbeNoResultCapturesStderr(t *testing.T) {
	bin := writeFakeServer(t, `echo "WARNING: ignore me" >&2
echo "codex exploded" >&2
exit 0
`)
	client := &Client{codexBin: bin, timeout: 5 * time.Second}

	_, err := client.Probe(context.Background(), t.TempDir(), nil)
	var probeErr *ProbeError
	if !errors.As(err, &probeErr) {
		t.Fatalf("expected *ProbeError, got %v", err)
	}
	if probeErr.Kind != KindNoResult {
		t.Errorf("kind = %q, want %q", probeErr.Kind, KindNoResult)
	}
	if want := "codex exploded"; !strings.Contains(probeErr.Message, want) {
		t.Errorf("message %q does not cite stderr %q", probeErr.Message, want)
	}
}

func TestProbeNoSignal(t *testing.T) {
	bin := respondingServer(t, `{"id":"%s","result":{}}`)
	client := &Client{codexBin: bin, timeout: 5 * time.Second}

	_, err := client.Probe(context.Background(), t.TempDir(), nil)
	if kind := probeErrorKind(t, err); kind != KindNoSignal {
		t.Errorf("kind = %q, want %q", kind, KindNoSignal)
	}
}

func TestProbeMissingBinary(t *testing.T) {
	client := &Client{codexBin: filepath.Join(t.TempDir(), "nope"), timeout: time.Second}
	_, err := client.Probe(context.Background(), t.TempDir(), nil)
	if kind := probeErrorKind(t, err); kind != KindCommFailure {
		t.Errorf("kind = %q, want %q", kind, KindCommFailure)
	}
}

func TestProbePassesCodexHomeAndExtraEnv(t *testing.T) {
	bin := writeFakeServer(t, `read line
read line
printf '{"id":"x","result":{}}\n'
echo "HOME=$CODEX_HOME PROXY=$HTTP_PROXY" >&2
exit 0
`)
	client := &Client{codexBin: bin, timeout: 5 * time.Second}

	home := t.TempDir()
	_, err := client.Probe(context.Background(), home, map[string]string{"HTTP_PROXY": "http://127.0.0.1:7890/"})
	var probeErr *ProbeError
	if !errors.As(err, &probeErr) {
		t.Fatalf("expected *ProbeError, got %v", err)
	}
	if want := "HOME=" + home + " PROXY=http://127.0.0.1:7890/"; !strings.Contains(probeErr.Message, want) {
		t.Errorf("message %q does not show the child environment %q", probeErr.Message, want)
	}
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient("/usr/local/bin/codex", 0)
	if client.codexBin != "/usr/local/bin/codex" {
		t.Errorf("codexBin = %q", client.codexBin)
	}
	if client.timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", client.timeout, DefaultTimeout)
	}
}
