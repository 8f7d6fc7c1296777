package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/colorbook/internal/config"
	"github.com/hpungsan/colorbook/internal/errors"
)

func TestResolvePath(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(nested, 0700))
	existing := filepath.Join(dir, "saved.jsonl")
	require.NoError(t, os.WriteFile(existing, []byte("{}\n"), 0600))
	dirs := []string{dir}

	tests := []struct {
		name      string
		path      string
		ext       string
		mustExist bool
		code      errors.ErrorCode
	}{
		{name: "empty", path: "", ext: HistoryFileExt, code: errors.ErrInvalidRequest},
		{name: "parent traversal", path: "../history.jsonl", ext: HistoryFileExt, code: errors.ErrInvalidRequest},
		{name: "mid-path traversal", path: dir + "/../history.jsonl", ext: HistoryFileExt, code: errors.ErrInvalidRequest},
		{name: "backslash traversal", path: `..\history.jsonl`, ext: HistoryFileExt, code: errors.ErrInvalidRequest},
		{name: "wrong extension", path: filepath.Join(dir, "history.json"), ext: HistoryFileExt, code: errors.ErrInvalidRequest},
		{name: "video wants mp4", path: filepath.Join(dir, "story.mov"), ext: VideoFileExt, code: errors.ErrInvalidRequest},
		{name: "outside allowed dirs", path: filepath.Join(t.TempDir(), "out.mp4"), ext: VideoFileExt, code: errors.ErrInvalidRequest},
		{name: "nested directory", path: filepath.Join(nested, "out.mp4"), ext: VideoFileExt, code: errors.ErrInvalidRequest},
		{name: "missing when required", path: filepath.Join(dir, "missing.jsonl"), ext: HistoryFileExt, mustExist: true, code: errors.ErrNotFound},
		{name: "new file", path: filepath.Join(dir, "out.mp4"), ext: VideoFileExt},
		{name: "upper-case extension", path: filepath.Join(dir, "OUT.MP4"), ext: VideoFileExt},
		{name: "existing file", path: existing, ext: HistoryFileExt, mustExist: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolvePath(tc.path, tc.ext, tc.mustExist, dirs)
			if tc.code != "" {
				require.True(t, errors.Is(err, tc.code), "got %v", err)
				return
			}
			require.NoError(t, err)
			require.True(t, filepath.IsAbs(got))
			require.Equal(t, dir, filepath.Dir(got))
		})
	}
}

func TestResolvePath_SymlinkRejected(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(t.TempDir(), "target.jsonl")
	require.NoError(t, os.WriteFile(target, []byte("{}\n"), 0600))
	link := filepath.Join(dir, "link.jsonl")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	for _, mustExist := range []bool{true, false} {
		_, err := ResolvePath(link, HistoryFileExt, mustExist, []string{dir})
		require.True(t, errors.Is(err, errors.ErrInvalidRequest), "mustExist=%v: %v", mustExist, err)
	}
}

func TestExportDirs(t *testing.T) {
	base := t.TempDir()
	extra := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{extra, "relative/ignored", extra}

	dirs, err := ExportDirs(base, cfg)
	require.NoError(t, err)
	require.Equal(t, []string{ExportsDir(base), extra}, dirs)

	info, err := os.Stat(ExportsDir(base))
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestExportDirs_ResolvesSymlinkedEntry(t *testing.T) {
	target := t.TempDir()
	link := filepath.Join(t.TempDir(), "videos")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{link}

	dirs, err := ExportDirs(t.TempDir(), cfg)
	require.NoError(t, err)
	resolved, err := filepath.EvalSymlinks(target)
	require.NoError(t, err)
	require.Contains(t, dirs, resolved)
}

func TestFileSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"A Cat in a Hat", "a-cat-in-a-hat"},
		{"../../etc/passwd", "etc-passwd"},
		{"back\\slash", "back-slash"},
		{"bell\x07char", "bell-char"},
		{"  rocket!!  ship  ", "rocket-ship"},
		{"日本の猫", "日本の猫"},
		{"", "untitled"},
		{"//", "untitled"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, FileSlug(tc.in), "FileSlug(%q)", tc.in)
	}

	long := FileSlug("a very long description of a dragon flying over the castle at night")
	require.LessOrEqual(t, len([]rune(long)), slugMaxRunes+1)
	require.NotEqual(t, '-', rune(long[len(long)-1]))
}
