package ops

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/colorbook/internal/errors"
)

func TestExportHistory_DefaultPath(t *testing.T) {
	h := newHarness(t)
	h.generate(t)
	h.generate(t)
	require.NoError(t, SelectHistory(context.Background(), h.s, intPtr(0)))

	out, err := ExportHistory(context.Background(), h.s, ExportHistoryInput{})
	require.NoError(t, err)
	require.Equal(t, 2, out.Count)
	require.Equal(t, ExportsDir(h.s.BaseDir), filepath.Dir(out.Path))
	require.Equal(t, HistoryFileExt, filepath.Ext(out.Path))

	f, err := os.Open(out.Path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(nil, maxLineSize)
	require.True(t, scanner.Scan())
	var header ExportHeader
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &header))
	require.True(t, header.ColorbookExport)
	require.Equal(t, 0, *header.Selected)

	lines := 0
	for scanner.Scan() {
		lines++
	}
	require.Equal(t, 2, lines)

	info, err := os.Stat(out.Path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestExportHistory_EmptyRing(t *testing.T) {
	h := newHarness(t)
	out, err := ExportHistory(context.Background(), h.s, ExportHistoryInput{})
	require.NoError(t, err)
	require.Equal(t, 0, out.Count)
}

func TestExportHistory_RejectsOutsidePath(t *testing.T) {
	h := newHarness(t)
	_, err := ExportHistory(context.Background(), h.s, ExportHistoryInput{Path: filepath.Join(t.TempDir(), "h.jsonl")})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestExportHistory_AllowedPath(t *testing.T) {
	h := newHarness(t)
	h.generate(t)
	extra := t.TempDir()
	h.s.Cfg.AllowedPaths = []string{extra}

	path := filepath.Join(extra, "backup.jsonl")
	out, err := ExportHistory(context.Background(), h.s, ExportHistoryInput{Path: path})
	require.NoError(t, err)
	require.Equal(t, path, out.Path)

	entries, err := os.ReadDir(extra)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp file left behind")
}

func TestExportHistory_KeepsExistingOnSymlink(t *testing.T) {
	h := newHarness(t)
	target := filepath.Join(t.TempDir(), "target.jsonl")
	require.NoError(t, os.WriteFile(target, []byte("keep"), 0600))
	link := filepath.Join(ExportsDir(h.s.BaseDir), "link.jsonl")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, err := ExportHistory(context.Background(), h.s, ExportHistoryInput{Path: link})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "keep", string(data))
}
