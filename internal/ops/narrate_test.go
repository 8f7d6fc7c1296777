package ops

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/colorbook/internal/narration"
)

func touchAudio(t *testing.T, h *harness, names ...string) []string {
	t.Helper()
	dir := AudioDir(h.s.BaseDir)
	require.NoError(t, os.MkdirAll(dir, 0700))
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(paths[i], []byte("mp3"), 0600))
	}
	return paths
}

func TestRecordNarration_RemovesOlderAudio(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	paths := touchAudio(t, h, "narration-old.mp3", "narration-new.mp3", "ambient.mp3")

	require.NoError(t, RecordNarration(ctx, h.s, narration.Artifact{Path: paths[1], Text: "hi"}))

	require.NoFileExists(t, paths[0])
	require.FileExists(t, paths[1])
	require.FileExists(t, paths[2], "only synthesized narration is pruned")
}

func TestPruneNarrations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	touchAudio(t, h, "narration-1.mp3", "narration-2.mp3")
	removed, err := PruneNarrations(ctx, h.s)
	require.NoError(t, err)
	require.Equal(t, 2, removed, "nothing recorded, nothing kept")

	paths := touchAudio(t, h, "narration-3.mp3")
	require.NoError(t, RecordNarration(ctx, h.s, narration.Artifact{Path: paths[0], Text: "hi"}))
	stale := touchAudio(t, h, "narration-superseded.mp3")

	removed, err = PruneNarrations(ctx, h.s)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.NoFileExists(t, stale[0])
	require.FileExists(t, paths[0])

	art, err := LastNarration(ctx, h.s)
	require.NoError(t, err)
	require.Equal(t, paths[0], art.Path)
}
