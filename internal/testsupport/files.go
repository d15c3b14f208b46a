package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

var wavHeader = []byte("RIFF\x00\x00\x00\x00WAVEfmt ")

// WriteAudio writes a placeholder recording of size bytes that starts with a
// WAV header. A size smaller than the header still writes the full header.
// Nothing decodes it; tests only need a non-empty file with an audio name.
func WriteAudio(t testing.TB, path string, size int) string {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	body := append([]byte{}, wavHeader...)
	if pad := size - len(body); pad > 0 {
		body = append(body, bytes.Repeat([]byte{0x42}, pad)...)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
