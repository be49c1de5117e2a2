package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dokzlo13/lightseq/internal/device"
	"github.com/dokzlo13/lightseq/internal/pattern"
	"github.com/dokzlo13/lightseq/internal/preview"
)

var previewLights []string

var previewCmd = &cobra.Command{
	Use:   "preview FILE",
	Short: "Play a pattern against simulated lights in the terminal",
	Long: `Play a pattern against simulated lights. Commands are read line by line
from stdin:

  p or space   play / pause
  r            restart from the first step
  s            stop and reset
  <n>          seek to step n (1-based)
  q            quit`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := loadConfig(); err != nil {
			return err
		}
		p, err := pattern.LoadFile(args[0])
		if err != nil {
			return err
		}

		lights := make([]device.ID, 0, len(previewLights))
		for _, l := range previewLights {
			lights = append(lights, device.ID(l))
		}
		if len(lights) == 0 {
			lights = p.DeclaredLights()
		}
		if len(lights) == 0 {
			lights = []device.ID{"light-1", "light-2", "light-3"}
		}

		sim, err := preview.New(p, lights)
		if err != nil {
			return err
		}
		return runPreview(cmd.Context(), sim, len(p.Steps), cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	previewCmd.Flags().StringSliceVar(&previewLights, "lights", nil, "Simulated light ids (default: lights named by the pattern)")
}

type keyKind int

const (
	keyToggle keyKind = iota
	keyRestart
	keyStop
	keySeek
	keyQuit
)

type key struct {
	kind keyKind
	step int // 0-based, keySeek only
}

// parseKey reads one input line. Numbers are 1-based step positions.
func parseKey(line string) (key, error) {
	if line != "" && strings.TrimSpace(line) == "" {
		return key{kind: keyToggle}, nil
	}
	switch s := strings.ToLower(strings.TrimSpace(line)); s {
	case "", "p":
		return key{kind: keyToggle}, nil
	case "r":
		return key{kind: keyRestart}, nil
	case "s":
		return key{kind: keyStop}, nil
	case "q":
		return key{kind: keyQuit}, nil
	default:
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return key{}, fmt.Errorf("unknown command %q", s)
		}
		return key{kind: keySeek, step: n - 1}, nil
	}
}

func runPreview(ctx context.Context, sim *preview.Simulator, steps int, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- sim.Run(ctx) }()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(out, "p/space play-pause, r restart, s stop, <n> seek, q quit")
	frames := sim.Frames()
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			renderFrame(out, f, steps)
		case line, ok := <-lines:
			if !ok {
				cancel()
				lines = nil
				continue
			}
			k, err := parseKey(line)
			if err != nil {
				failColor.Fprintln(out, err)
				continue
			}
			if k.kind == keyQuit {
				cancel()
				continue
			}
			if err := apply(sim, k); err != nil {
				failColor.Fprintln(out, err)
			}
		case err := <-runErr:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

func apply(sim *preview.Simulator, k key) error {
	switch k.kind {
	case keyRestart:
		return sim.Restart()
	case keyStop:
		return sim.Stop()
	case keySeek:
		return sim.Seek(k.step)
	default:
		snap, err := sim.Snapshot()
		if err != nil {
			return err
		}
		if snap.State == preview.Playing {
			return sim.Pause()
		}
		return sim.Play()
	}
}
