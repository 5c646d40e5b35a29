package console

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peaklabeler/internal/models"
	"peaklabeler/pkg/config"
	"peaklabeler/pkg/container"
	"peaklabeler/pkg/labeler"
)

func newConsole(t *testing.T) (*Console, *labeler.Engine, *bytes.Buffer) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "synth.plcx")
	require.NoError(t, container.Create(path, container.SyntheticSpec(8, 8, 3, 5)))

	cfg := config.DefaultConfig()
	cfg.Containers = []string{path}
	e, err := labeler.New(cfg, labeler.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	var out bytes.Buffer
	return New(e, &out), e, &out
}

func TestRunScript(t *testing.T) {
	c, e, out := newConsole(t)
	dir := t.TempDir()
	preview := filepath.Join(dir, "now.png")
	sessionPath := filepath.Join(dir, "s.session")

	script := strings.Join([]string{
		"next",
		"range 0 0 2 2",
		"active 2",
		"point 5 5",
		"vertex 4 0",
		"vertex 4 3",
		"vertex 7 3",
		"undo",
		"vertex 7 3",
		"vertex 7 0",
		"paint",
		"bogus",
		"goto 99",
		"preview " + preview,
		"save " + sessionPath,
		"flush",
		"info",
		"quit",
		"next",
	}, "\n")

	require.NoError(t, c.Run(strings.NewReader(script)))

	text := out.String()
	assert.Contains(t, text, "sample 1/2")
	assert.Contains(t, text, "range painted")
	assert.Contains(t, text, "paint: 9 pixels changed")
	assert.Contains(t, text, `unknown command "bogus"`)
	assert.Contains(t, text, "out of range")
	assert.Contains(t, text, "session saved to "+sessionPath)
	assert.Contains(t, text, "sample 1 written")

	assert.Equal(t, 1, e.Current(), "commands after quit are not run")
	assert.Equal(t, models.Label(2), e.ActiveLabel())

	s, err := e.GetSample(1)
	require.NoError(t, err)
	assert.Equal(t, 9, s.Overlay.Count(1))
	assert.Equal(t, 10, s.Overlay.Count(2))

	_, err = os.Stat(preview)
	assert.NoError(t, err)
	_, err = os.Stat(sessionPath)
	assert.NoError(t, err)
}

func TestExecArguments(t *testing.T) {
	c, _, _ := newConsole(t)

	assert.NoError(t, c.Exec(""))
	assert.Error(t, c.Exec("point 1"))
	assert.Error(t, c.Exec("point a b"))
	assert.Error(t, c.Exec("range 0 0 1"))
	assert.Error(t, c.Exec("vertex x 1"))
	assert.Error(t, c.Exec("active 42"))
	assert.Error(t, c.Exec("load"))
	assert.ErrorIs(t, c.Exec("quit"), errQuit)
}

func TestLayersAndExport(t *testing.T) {
	c, e, out := newConsole(t)

	require.NoError(t, c.Exec("layers"))
	assert.Contains(t, out.String(), "* 1 peak")

	dir := filepath.Join(t.TempDir(), "export")
	require.NoError(t, c.Exec("export "+dir))
	files, err := filepath.Glob(filepath.Join(dir, "*.png"))
	require.NoError(t, err)
	assert.Len(t, files, e.IndexCount())
}
