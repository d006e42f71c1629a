// Package refine runs the optional high-accuracy phoneme tool and decides
// whether its output may replace the estimated timeline.
package refine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/avneetpandey82/Lip-Sync/internal/audio"
	"github.com/avneetpandey82/Lip-Sync/internal/viseme"
)

// DefaultTimeout bounds every tool run.
const DefaultTimeout = 30 * time.Second

// waitDelay bounds how long Wait keeps draining output after the tool was
// killed, in case a grandchild still holds the pipes.
const waitDelay = 2 * time.Second

// Request is the input of one refinement.
type Request struct {
	PCM        audio.PCM
	Transcript string
}

// Refiner produces cues for an utterance. Implementations must honour ctx.
type Refiner interface {
	Refine(ctx context.Context, req Request) ([]viseme.Cue, error)
}

// RefinerFunc adapts a function to Refiner.
type RefinerFunc func(ctx context.Context, req Request) ([]viseme.Cue, error)

// Refine implements Refiner.
func (f RefinerFunc) Refine(ctx context.Context, req Request) ([]viseme.Cue, error) {
	return f(ctx, req)
}

// ToolConfig configures the external tool.
type ToolConfig struct {
	Binary         string        `mapstructure:"binary"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ExtendedShapes string        `mapstructure:"extended_shapes"`
	Recognizer     string        `mapstructure:"recognizer"`
	TempDir        string        `mapstructure:"temp_dir"`

	// LogWriter receives the tool's stderr. If nil, stderr is only kept for
	// error reports.
	LogWriter io.Writer `mapstructure:"-"`
}

// Tool runs the external binary once per request:
//
//	<binary> -f json -d <dialog.txt> --extendedShapes GHX [-r <recognizer>] -q <audio.wav>
type Tool struct {
	cfg ToolConfig
	log zerolog.Logger
}

// NewTool creates a tool runner.
func NewTool(cfg ToolConfig, log zerolog.Logger) *Tool {
	if cfg.Binary == "" {
		cfg.Binary = "rhubarb"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ExtendedShapes == "" {
		cfg.ExtendedShapes = "GHX"
	}
	return &Tool{cfg: cfg, log: log.With().Str("component", "refine.tool").Logger()}
}

// Available reports whether the binary can be found.
func (t *Tool) Available() error {
	if _, err := exec.LookPath(t.cfg.Binary); err != nil {
		return fmt.Errorf("%w: %q", ErrToolNotFound, t.cfg.Binary)
	}
	return nil
}

func (t *Tool) args(dialog, wav string) []string {
	args := []string{"-f", "json"}
	if dialog != "" {
		args = append(args, "-d", dialog)
	}
	args = append(args, "--extendedShapes", t.cfg.ExtendedShapes)
	if t.cfg.Recognizer != "" {
		args = append(args, "-r", t.cfg.Recognizer)
	}
	return append(args, "-q", wav)
}

// Refine implements Refiner.
func (t *Tool) Refine(ctx context.Context, req Request) ([]viseme.Cue, error) {
	if err := req.PCM.Validate(); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(t.cfg.TempDir, "lipsync-refine-")
	if err != nil {
		return nil, fmt.Errorf("refine: create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	wavPath := filepath.Join(dir, "speech.wav")
	if err := writeWAV(wavPath, req.PCM); err != nil {
		return nil, err
	}

	var dialogPath string
	if req.Transcript != "" {
		dialogPath = filepath.Join(dir, "dialog.txt")
		if err := os.WriteFile(dialogPath, []byte(req.Transcript), 0o600); err != nil {
			return nil, fmt.Errorf("refine: write dialog: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	stdout, err := t.run(ctx, t.args(dialogPath, wavPath))
	if err != nil {
		return nil, err
	}
	return parseOutput(stdout)
}

func writeWAV(path string, pcm audio.PCM) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("refine: create wav: %w", err)
	}
	if err := audio.EncodeWAV(f, pcm); err != nil {
		f.Close()
		return fmt.Errorf("refine: encode wav: %w", err)
	}
	return f.Close()
}

func (t *Tool) run(ctx context.Context, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, t.cfg.Binary, args...)
	cmd.WaitDelay = waitDelay
	killGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	if t.cfg.LogWriter != nil {
		cmd.Stderr = io.MultiWriter(&stderr, t.cfg.LogWriter)
	} else {
		cmd.Stderr = &stderr
	}

	start := time.Now()
	t.log.Debug().Strs("args", args).Msg("Starting refinement tool")

	if err := cmd.Start(); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %q", ErrToolNotFound, t.cfg.Binary)
		}
		return nil, fmt.Errorf("refine: start tool: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		errTail := tail(stderr.String(), 512)
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &TimeoutError{After: time.Since(start).Round(time.Millisecond), Stderr: errTail}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ExitError{ExitCode: cmd.ProcessState.ExitCode(), Stderr: errTail}
	}

	t.log.Debug().
		Dur("elapsed", time.Since(start)).
		Int("bytes", stdout.Len()).
		Msg("Refinement tool finished")
	return stdout.Bytes(), nil
}

// parseOutput decodes {"mouthCues":[{"start":..,"end":..,"value":"X"}]}.
func parseOutput(out []byte) ([]viseme.Cue, error) {
	var tl viseme.Timeline
	if err := json.Unmarshal(out, &tl); err != nil {
		return nil, &ParseError{Output: tail(string(out), 256), Err: err}
	}
	if len(tl.Cues) == 0 {
		return nil, &ParseError{Output: tail(string(out), 256), Err: ErrEmptyResult}
	}
	return tl.Cues, nil
}
