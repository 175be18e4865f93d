package quota

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/zenquiem/codex-accounts-switch/log"
)

const (
	// DefaultTimeout bounds one whole probe, handshake included.
	DefaultTimeout = 30 * time.Second

	// shutdownGrace is how long the child gets to exit after SIGTERM.
	shutdownGrace = 1 * time.Second

	// maxLineBytes sizes the stdout scanner buffer.
	maxLineBytes = 1024 * 1024
)

// probeResult is one successful rate-limit read before caching metadata is
// attached.
type probeResult struct {
	FiveHour *Window
	Weekly   *Window
	RawText  string
}

func (r *probeResult) hasSignal() bool {
	return r.FiveHour.HasSignal() || r.Weekly.HasSignal()
}

// Client probes an account's quota by driving `codex app-server` over its
// line-delimited JSON-RPC stdio protocol.
type Client struct {
	codexBin string
	timeout  time.Duration
}

// NewClient builds a client. An empty codexBin falls back to a $PATH lookup.
func NewClient(codexBin string, timeout time.Duration) *Client {
	if codexBin == "" {
		if resolved, err := exec.LookPath("codex"); err == nil {
			codexBin = resolved
		} else {
			codexBin = "codex"
		}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{codexBin: codexBin, timeout: timeout}
}

// Probe spawns the app-server for the given account home, performs the
// initialize + rateLimits/read handshake and returns the mapped windows.
// extraEnv (e.g. proxy overrides) is appended to the child environment.
// All failures come back as *ProbeError; the child never outlives the call.
func (c *Client) Probe(ctx context.Context, codexHome string, extraEnv map[string]string) (*probeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.Command(c.codexBin, "app-server")
	env := append(os.Environ(), "CODEX_HOME="+codexHome)
	for key, value := range extraEnv {
		env = append(env, key+"="+value)
	}
	cmd.Env = env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &ProbeError{Kind: KindCommFailure, Message: fmt.Sprintf("app-server communication failed: %v", err)}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &ProbeError{Kind: KindCommFailure, Message: fmt.Sprintf("app-server communication failed: %v", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &ProbeError{Kind: KindCommFailure, Message: fmt.Sprintf("app-server communication failed: %v", err)}
	}

	if err := cmd.Start(); err != nil {
		return nil, &ProbeError{Kind: KindCommFailure, Message: fmt.Sprintf("failed to start codex app-server: %v", err)}
	}
	log.Debug().Int("pid", cmd.Process.Pid).Str("home", codexHome).Msg("codex app-server started for quota probe")

	// Cleanup runs however the wait loop exits.
	defer shutdownProcess(cmd)

	stdoutLines := make(chan string, 16)
	stderrLines := make(chan string, 16)
	go readLines(stdout, stdoutLines)
	go readLines(stderr, stderrLines)
	// After the coordinator returns, keep the channels flowing until the
	// killed child closes its pipes, so the readers never block on send.
	defer func() {
		go drainLines(stdoutLines)
		go drainLines(stderrLines)
	}()

	initID := uuid.NewString()
	quotaID := uuid.NewString()
	requests := []rpcRequest{
		{
			JSONRPC: "2.0",
			ID:      initID,
			Method:  "initialize",
			Params: map[string]any{
				"clientInfo":   map[string]string{"name": "cas-quota", "version": "1.0.0"},
				"capabilities": map[string]any{},
			},
		},
		{
			JSONRPC: "2.0",
			ID:      quotaID,
			Method:  "account/rateLimits/read",
			Params:  nil,
		},
	}
	for _, request := range requests {
		payload, err := json.Marshal(request)
		if err != nil {
			return nil, &ProbeError{Kind: KindCommFailure, Message: fmt.Sprintf("app-server communication failed: %v", err)}
		}
		if _, err := stdin.Write(append(payload, '\n')); err != nil {
			return nil, &ProbeError{Kind: KindCommFailure, Message: fmt.Sprintf("app-server communication failed: %v", err)}
		}
	}

	var (
		quotaResp      *rpcResponse
		stderrCaptured []string
		timedOut       bool
	)
	stdoutCh, stderrCh := stdoutLines, stderrLines

wait:
	for stdoutCh != nil || stderrCh != nil {
		select {
		case <-ctx.Done():
			timedOut = true
			break wait

		case line, ok := <-stdoutCh:
			if !ok {
				// Child closed stdout; it has exited or is about to.
				stdoutCh = nil
				continue
			}
			var resp rpcResponse
			if err := json.Unmarshal([]byte(line), &resp); err != nil {
				continue
			}
			if resp.matchesID(quotaID) {
				quotaResp = &resp
				break wait
			}

		case line, ok := <-stderrCh:
			if !ok {
				stderrCh = nil
				continue
			}
			cleaned := cleanLine(line)
			if cleaned != "" && !strings.HasPrefix(cleaned, "WARNING:") {
				stderrCaptured = append(stderrCaptured, cleaned)
			}
		}
	}

	if quotaResp == nil {
		detail := ""
		if len(stderrCaptured) > 0 {
			detail = " " + stderrCaptured[0]
		}
		if timedOut {
			return nil, &ProbeError{Kind: KindTimeout, Message: strings.TrimSpace("timed out waiting for the app-server rate-limit response." + detail)}
		}
		return nil, &ProbeError{Kind: KindNoResult, Message: strings.TrimSpace("app-server returned no rate-limit result." + detail)}
	}
	if quotaResp.Error != nil {
		return nil, classifyRPCError(quotaResp.Error)
	}

	var result rateLimitsResult
	if len(quotaResp.Result) > 0 {
		if err := json.Unmarshal(quotaResp.Result, &result); err != nil {
			return nil, &ProbeError{Kind: KindNoSignal, Message: "no usable quota information in the app-server response"}
		}
	}
	fiveHour, weekly := mapRateLimits(result.snapshot())
	probe := &probeResult{
		FiveHour: fiveHour,
		Weekly:   weekly,
		RawText:  snapshotRawText(fiveHour, weekly),
	}
	if !probe.hasSignal() {
		return nil, &ProbeError{Kind: KindNoSignal, Message: "no usable quota information in the app-server response"}
	}
	return probe, nil
}

// readLines forwards non-blank lines to out and closes it on EOF.
func readLines(r io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, maxLineBytes), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		out <- line
	}
}

func drainLines(lines <-chan string) {
	for range lines {
	}
}

// shutdownProcess asks the child to exit and kills it when unresponsive.
func shutdownProcess(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_, _ = cmd.Process.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		log.Debug().Int("pid", cmd.Process.Pid).Msg("app-server did not exit in time, killing")
		_ = cmd.Process.Kill()
		<-done
	}
}
