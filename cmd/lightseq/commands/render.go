package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/dokzlo13/lightseq/internal/device"
	"github.com/dokzlo13/lightseq/internal/preview"
	"github.com/dokzlo13/lightseq/internal/registry"
)

var (
	okColor   = color.New(color.FgGreen)
	failColor = color.New(color.FgRed, color.Bold)
	dimColor  = color.New(color.Faint)
	headColor = color.New(color.Bold)
)

// swatch renders a two-cell block in c, scaled by its alpha.
func swatch(c preview.RGBA) string {
	if c.A == 0 {
		return dimColor.Sprint("··")
	}
	scale := func(v uint8) int { return int(v) * int(c.A) / 255 }
	return color.RGB(scale(c.R), scale(c.G), scale(c.B)).Sprint("██")
}

// renderFrame writes one status line for a preview frame.
func renderFrame(w io.Writer, f preview.Frame, steps int) {
	var b strings.Builder
	if f.Step < 0 {
		fmt.Fprintf(&b, "%-8s  step -/%d ", f.State, steps)
	} else {
		fmt.Fprintf(&b, "%-8s  step %d/%d ", f.State, f.Step+1, steps)
	}
	for _, lc := range f.Lights {
		fmt.Fprintf(&b, " %s %s", swatch(lc.Color), lc.ID)
	}
	fmt.Fprintln(w, b.String())
}

// stateColor maps an observed device state to a preview color.
func stateColor(s device.State) preview.RGBA {
	switch {
	case !s.On:
		return preview.Off
	case s.RGB != nil:
		return preview.RGBA{R: s.RGB.R, G: s.RGB.G, B: s.RGB.B, A: 255}
	default:
		return preview.RGBA{R: 255, G: 255, B: 255, A: 255}
	}
}

// renderDevices writes the registry as a table.
func renderDevices(w io.Writer, entries []registry.Entry) {
	headColor.Fprintf(w, "%-18s %-20s %-5s %-14s %s\n", "ID", "NAME", "POWER", "MODE", "COLOR")
	for _, e := range entries {
		power := dimColor.Sprint("?    ")
		if e.Polled {
			if e.State.On {
				power = okColor.Sprint("on   ")
			} else {
				power = dimColor.Sprint("off  ")
			}
		}
		rgb := "-"
		if e.State.RGB != nil {
			rgb = e.State.RGB.String()
		}
		fmt.Fprintf(w, "%-18s %-20s %s %-14s %s %s\n", e.ID, e.Name, power, e.State.Mode, swatch(stateColor(e.State)), rgb)
	}
}
