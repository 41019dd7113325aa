package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestValidateDefaults(t *testing.T) {
	out, _, err := execute(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "VALID: payload st20")
	assert.Contains(t, out, "frame size 8294400 bytes")
}

func TestValidateFlags(t *testing.T) {
	out, _, err := execute(t, "validate", "-t", "st30", "-j", "pcm24", "-g", "96k", "-e", "125us", "-c", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "VALID: payload st30, frame size 144 bytes, interval 125µs")
}

func TestValidateShortHeightFlag(t *testing.T) {
	out, _, err := execute(t, "validate", "-w", "16", "-h", "8", "-x", "rgb8")
	require.NoError(t, err)
	assert.Contains(t, out, "frame size 384 bytes")
}

func TestValidatePrint(t *testing.T) {
	out, _, err := execute(t, "validate", "--print", "-t", "st40")
	require.NoError(t, err)
	assert.Contains(t, out, "mediatx:")
	assert.Contains(t, out, "type: st40")
	assert.Contains(t, out, "frame_size: 4096")
}

func TestValidateConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sender.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`mediatx:
  payload:
    type: st22
    video:
      width: 1280
      height: 720
      fps: 60
      pix_fmt: nv12
`), 0644))

	out, _, err := execute(t, "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "VALID: payload st22, frame size 1382400 bytes")
}

func TestValidateInvalid(t *testing.T) {
	_, errOut, err := execute(t, "validate", "-x", "yuv420")
	var exit *ExitError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 1, exit.Code)
	assert.Contains(t, errOut, "INVALID:")
}

func TestSendDiscard(t *testing.T) {
	out, _, err := execute(t, "send", "--log-level", "error",
		"-o", "discard", "-w", "16", "-h", "16", "-f", "1000", "-n", "3", "--linger", "100ms")
	require.NoError(t, err)
	assert.Contains(t, out, "DONE session")
	assert.Contains(t, out, "frame-limit")
	assert.Regexp(t, `frames:\s+3`, out)
	assert.Regexp(t, `bytes:\s+3072`, out)
}

func TestSendFileReplayFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.raw")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	out, _, err := execute(t, "send", "--log-level", "error",
		"-o", "discard", "-w", "16", "-h", "16", "-b", path, "-l")
	require.Error(t, err)
	assert.Contains(t, out, "FAILED session")
	assert.Contains(t, out, "replay-failed")
}

func TestSendUnsupportedProtocol(t *testing.T) {
	_, _, err := execute(t, "send", "--log-level", "error", "-o", "memif")
	assert.ErrorContains(t, err, "unsupported protocol")
}
