package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/avneetpandey82/Lip-Sync/internal/audio"
	"github.com/avneetpandey82/Lip-Sync/internal/bus"
	"github.com/avneetpandey82/Lip-Sync/internal/config"
	"github.com/avneetpandey82/Lip-Sync/internal/stream"
	"github.com/avneetpandey82/Lip-Sync/internal/timeline"
	"github.com/avneetpandey82/Lip-Sync/internal/utterance"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readWAV(path string) (audio.PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return audio.PCM{}, err
	}
	defer f.Close()
	pcm, err := audio.DecodeWAV(f)
	if err != nil {
		return audio.PCM{}, fmt.Errorf("%s: %w", path, err)
	}
	return pcm, nil
}

func (a *app) pipeline(opts ...utterance.Option) (*utterance.Pipeline, error) {
	opts = append([]utterance.Option{utterance.WithLogger(a.component("pipeline"))}, opts...)
	return utterance.New(a.cfg, opts...)
}

// ═══════════════════════════════════════════════════════════════════════════════
// PHONEMES
// ═══════════════════════════════════════════════════════════════════════════════

func (a *app) phonemesCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "phonemes <text>",
		Short: "Show the estimated viseme tokens for each word",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.pipeline()
			if err != nil {
				return err
			}
			est := p.Estimator()
			words := est.Analyze(strings.Join(args, " "))
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), words)
			}
			out := cmd.OutOrStdout()
			for _, w := range words {
				tokens := make([]string, len(w.Tokens))
				for i, t := range w.Tokens {
					tokens[i] = t.String()
				}
				source := "rules"
				if est.Known(w.Text) {
					source = "dict"
				}
				fmt.Fprintf(out, "%-16s %-5s %-8s %s\n", w.Text, source, w.Pause, strings.Join(tokens, " "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// TIMELINE
// ═══════════════════════════════════════════════════════════════════════════════

func (a *app) timelineCmd() *cobra.Command {
	var (
		audioPath string
		duration  float64
		refine    bool
	)
	cmd := &cobra.Command{
		Use:   "timeline <text>",
		Short: "Estimate a duration-exact viseme timeline",
		Long: `Estimate a viseme timeline for text spoken over a known duration.
With --audio the duration comes from the WAV file, and --refine waits for the
external tool (when enabled in the configuration) before printing.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if audioPath == "" {
				if duration < 0 {
					return fmt.Errorf("duration must not be negative")
				}
				p, err := a.pipeline()
				if err != nil {
					return err
				}
				tl := timeline.NewAllocator(a.cfg.Allocator).Allocate(p.Estimator().Analyze(text), duration)
				return writeJSON(cmd.OutOrStdout(), tl)
			}

			pcm, err := readWAV(audioPath)
			if err != nil {
				return err
			}
			p, err := a.pipeline()
			if err != nil {
				return err
			}
			u, err := p.Prepare(cmd.Context(), text, pcm)
			if err != nil {
				return err
			}
			if refine {
				<-u.Refined()
				d := u.Decision()
				a.log.Info("cli", "Refinement decided", map[string]any{
					"accepted": d.Accepted,
					"coverage": d.Coverage,
					"reason":   d.Reason,
				})
			}
			defer u.Stop()
			return writeJSON(cmd.OutOrStdout(), u.Timeline())
		},
	}
	cmd.Flags().StringVar(&audioPath, "audio", "", "16-bit WAV file with the spoken text")
	cmd.Flags().Float64Var(&duration, "duration", 0, "audio duration in seconds when no --audio is given")
	cmd.Flags().BoolVar(&refine, "refine", false, "wait for the refinement decision")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// ENVELOPE
// ═══════════════════════════════════════════════════════════════════════════════

func (a *app) envelopeCmd() *cobra.Command {
	var frameRate int
	cmd := &cobra.Command{
		Use:   "envelope <file.wav>",
		Short: "Print the normalized amplitude envelope of a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pcm, err := readWAV(args[0])
			if err != nil {
				return err
			}
			if frameRate <= 0 {
				frameRate = a.cfg.Envelope.FrameRate
			}
			env := audio.Extract(pcm.Samples, pcm.SampleRate, frameRate)
			return writeJSON(cmd.OutOrStdout(), env)
		},
	}
	cmd.Flags().IntVar(&frameRate, "frame-rate", 0, "envelope frames per second (default from config)")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// RENDER
// ═══════════════════════════════════════════════════════════════════════════════

func (a *app) renderCmd() *cobra.Command {
	var (
		audioPath string
		fps       int
		refine    bool
	)
	cmd := &cobra.Command{
		Use:   "render <text>",
		Short: "Render per-frame mouth weights offline",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if audioPath == "" {
				return errors.New("--audio is required")
			}
			pcm, err := readWAV(audioPath)
			if err != nil {
				return err
			}
			p, err := a.pipeline()
			if err != nil {
				return err
			}
			u, err := p.Prepare(cmd.Context(), strings.Join(args, " "), pcm)
			if err != nil {
				return err
			}
			defer u.Stop()
			if refine {
				<-u.Refined()
			}
			if fps <= 0 {
				fps = a.cfg.Playback.FPS
			}
			return writeJSON(cmd.OutOrStdout(), struct {
				Utterance string                    `json:"utterance"`
				FPS       int                       `json:"fps"`
				Duration  float64                   `json:"duration"`
				Frames    []utterance.RenderedFrame `json:"frames"`
			}{u.ID, fps, u.Duration(), u.Render(fps)})
		},
	}
	cmd.Flags().StringVar(&audioPath, "audio", "", "16-bit WAV file with the spoken text")
	cmd.Flags().IntVar(&fps, "fps", 0, "frames per second (default from config)")
	cmd.Flags().BoolVar(&refine, "refine", false, "wait for the refinement decision before rendering")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// SERVE
// ═══════════════════════════════════════════════════════════════════════════════

func (a *app) serveCmd() *cobra.Command {
	var (
		audioPath string
		addr      string
		loop      bool
		gap       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve [text]",
		Short: "Stream live mouth weights to renderer clients",
		Long: `Start the WebSocket renderer feed. With --audio the utterance is played
against a real-time playout buffer and frames are broadcast as they are
rendered. Configuration changes to playback tuning apply without restart.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			streamCfg := a.cfg.Stream
			if addr != "" {
				streamCfg.Addr = addr
			}

			events := bus.NewEventBus()
			srv := stream.NewServer(streamCfg, a.component("stream"),
				stream.WithBus(events),
				stream.WithLogHistory(a.log.History))
			p, err := a.pipeline(utterance.WithSink(srv), utterance.WithBus(events))
			if err != nil {
				return err
			}
			defer p.Close()

			if a.store.File() != "" {
				a.store.Watch(func(cfg *config.Config, err error) {
					if err != nil {
						a.log.Warn("config", "Ignoring invalid configuration change", map[string]any{"error": err.Error()})
						return
					}
					p.Apply(cfg)
				})
			}

			if err := srv.Start(); err != nil {
				return err
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(sctx)
			}()
			fmt.Fprintf(cmd.OutOrStdout(), "Renderer feed on ws://%s%s\n", srv.Addr(), streamCfg.Path)

			if audioPath != "" {
				pcm, err := readWAV(audioPath)
				if err != nil {
					return err
				}
				text := strings.Join(args, " ")
				for {
					if err := a.speak(ctx, p, text, pcm); err != nil {
						if errors.Is(err, context.Canceled) {
							return nil
						}
						return err
					}
					if !loop {
						break
					}
					select {
					case <-ctx.Done():
						return nil
					case <-time.After(gap):
					}
				}
			}

			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&audioPath, "audio", "", "16-bit WAV file to play")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().BoolVar(&loop, "loop", false, "repeat the utterance until interrupted")
	cmd.Flags().DurationVar(&gap, "gap", time.Second, "pause between repetitions")
	return cmd
}

// speak plays one utterance in real time. The playout buffer stands in for
// the sound card and is the playback clock.
func (a *app) speak(ctx context.Context, p *utterance.Pipeline, text string, pcm audio.PCM) error {
	u, err := p.Prepare(ctx, text, pcm)
	if err != nil {
		return err
	}

	playout, err := audio.NewPlayout(pcm.SampleRate, pcm.Len()+time.Second)
	if err != nil {
		return err
	}
	if _, err := playout.Write(pcm.Bytes()); err != nil {
		return err
	}
	_ = playout.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := playout.Drain(ctx, io.Discard, 10*time.Millisecond); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("playout", "Playout stopped", map[string]any{"error": err.Error()})
		}
	}()

	return u.Play(ctx, playout)
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONFIG
// ═══════════════════════════════════════════════════════════════════════════════

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeJSON(cmd.OutOrStdout(), a.cfg)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file in use",
		Run: func(cmd *cobra.Command, args []string) {
			if f := a.store.File(); f != "" {
				fmt.Fprintln(cmd.OutOrStdout(), f)
				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), "(defaults, no file)")
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				dir, err := config.Dir()
				if err != nil {
					return err
				}
				path = filepath.Join(dir, "lipsync.yaml")
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.Save(config.DefaultConfig(), path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})

	return cmd
}
