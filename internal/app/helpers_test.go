package app_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/palchat/pkg/audio"
)

func clipFile(t *testing.T) audio.Clip {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recording.m4a")
	if err := os.WriteFile(path, []byte("m4a"), 0o600); err != nil {
		t.Fatal(err)
	}
	return audio.Clip{URI: path}
}
