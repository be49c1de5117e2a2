package commands

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lightseq/internal/device"
	"github.com/dokzlo13/lightseq/internal/pattern"
	"github.com/dokzlo13/lightseq/internal/preview"
	"github.com/dokzlo13/lightseq/internal/registry"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		line    string
		want    key
		wantErr bool
	}{
		{"p", key{kind: keyToggle}, false},
		{" ", key{kind: keyToggle}, false},
		{"", key{kind: keyToggle}, false},
		{"R", key{kind: keyRestart}, false},
		{"s", key{kind: keyStop}, false},
		{"q", key{kind: keyQuit}, false},
		{"3", key{kind: keySeek, step: 2}, false},
		{"0", key{}, true},
		{"x", key{}, true},
	}
	for _, tt := range tests {
		got, err := parseKey(tt.line)
		if tt.wantErr {
			assert.Error(t, err, tt.line)
			continue
		}
		require.NoError(t, err, tt.line)
		assert.Equal(t, tt.want, got, tt.line)
	}
}

func TestRenderFrame(t *testing.T) {
	var buf bytes.Buffer
	renderFrame(&buf, preview.Frame{
		Step:   1,
		State:  preview.Playing,
		Lights: []preview.LightColor{{ID: "a", Color: preview.RGBA{R: 255, A: 255}}, {ID: "b", Color: preview.Off}},
	}, 4)
	out := buf.String()
	assert.Contains(t, out, "playing")
	assert.Contains(t, out, "step 2/4")
	assert.Contains(t, out, " a")
	assert.Contains(t, out, "·· b")

	buf.Reset()
	renderFrame(&buf, preview.Frame{Step: -1, State: preview.Stopped}, 4)
	assert.Contains(t, buf.String(), "step -/4")
}

func TestRenderDevices(t *testing.T) {
	var buf bytes.Buffer
	renderDevices(&buf, []registry.Entry{
		{ID: "10.0.0.1", Name: "desk", Polled: true, State: device.State{On: true, RGB: &device.RGB{R: 1, G: 2, B: 3}, Mode: "rgb"}},
		{ID: "10.0.0.2", Name: "10.0.0.2"},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "NAME")
	assert.Contains(t, lines[1], "desk")
	assert.Contains(t, lines[1], "on")
	assert.Contains(t, lines[1], "(1, 2, 3)")
	assert.Contains(t, lines[2], "?")
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"name":"ok","steps":[{"light_ip":"all","action":"turn_off","duration":10}]}`), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte(`{"steps":[{"light_ip":"all","action":"explode"}]}`), 0o644))

	var buf bytes.Buffer
	validateCmd.SetOut(&buf)
	t.Cleanup(func() { validateCmd.SetOut(nil) })

	require.NoError(t, validateCmd.RunE(validateCmd, []string{good}))
	assert.Contains(t, buf.String(), "(ok, 1 steps)")

	buf.Reset()
	err := validateCmd.RunE(validateCmd, []string{good, bad})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")
	assert.Contains(t, buf.String(), "bad.json")
	assert.Contains(t, buf.String(), "steps[0]")
}

func TestRunPreview_PlayThenQuit(t *testing.T) {
	p := &pattern.Pattern{Name: "two", Steps: []pattern.Step{
		{Target: pattern.All(), Action: pattern.SetColor(pattern.Color{R: 255}, 255), Duration: time.Hour},
		{Target: pattern.All(), Action: pattern.TurnOff(), Duration: time.Hour},
	}}
	sim, err := preview.New(p, []device.ID{"a"})
	require.NoError(t, err)

	in, feed := io.Pipe()
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- runPreview(context.Background(), sim, 2, in, out) }()

	_, err = feed.Write([]byte("p\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "step 1/2") }, time.Second, 5*time.Millisecond)

	_, err = feed.Write([]byte("9\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "out of range") }, time.Second, 5*time.Millisecond)

	_, err = feed.Write([]byte("q\n"))
	require.NoError(t, err)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("preview did not quit")
	}
	feed.Close()
}
