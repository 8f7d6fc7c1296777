package ops

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"github.com/hpungsan/colorbook/internal/config"
	"github.com/hpungsan/colorbook/internal/errors"
)

// slugMaxRunes caps the description part of generated file names.
const slugMaxRunes = 40

// ExportsDir is where videos and saved history land by default.
func ExportsDir(baseDir string) string {
	return filepath.Join(baseDir, "exports")
}

// AudioDir is where synthesized narration is written.
func AudioDir(baseDir string) string {
	return filepath.Join(baseDir, "audio")
}

// ExportDirs lists the directories user-supplied paths may point into:
// the exports dir first, then each absolute entry of cfg.AllowedPaths.
// Entries that are symlinks are resolved so they compare equal to the real
// parent of a checked path. The exports dir is created if missing.
func ExportDirs(baseDir string, cfg *config.Config) ([]string, error) {
	exports := ExportsDir(baseDir)
	if err := os.MkdirAll(exports, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("create exports directory: %w", err))
	}

	candidates := []string{exports}
	if cfg != nil {
		for _, p := range cfg.AllowedPaths {
			if filepath.IsAbs(p) {
				candidates = append(candidates, p)
			}
		}
	}

	dirs := make([]string, 0, len(candidates))
	for _, d := range candidates {
		abs, err := filepath.Abs(d)
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid allowed path %q: %v", d, err))
		}
		if isSymlink(abs) {
			if abs, err = filepath.EvalSymlinks(abs); err != nil {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot resolve allowed path %q: %v", d, err))
			}
		}
		if !slices.Contains(dirs, abs) {
			dirs = append(dirs, abs)
		}
	}
	return dirs, nil
}

// ResolvePath checks a user-supplied path and returns it made absolute.
// The file must carry ext, sit directly inside one of dirs, and be neither
// a symlink nor inside one. With mustExist the file has to be there
// already.
//
// Keeping files at depth one means no intermediate directory can be swapped
// for a symlink between this check and the open; openFileNoFollow covers
// the file itself.
func ResolvePath(path, ext string, mustExist bool, dirs []string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.NewInvalidRequest("path is required")
	}
	if hasDotDot(path) {
		return "", errors.NewInvalidRequest("path must not contain '..'")
	}
	if !strings.EqualFold(filepath.Ext(path), ext) {
		return "", errors.NewInvalidRequest(fmt.Sprintf("path must end in %s", ext))
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}
	parent := filepath.Dir(abs)
	if !slices.Contains(dirs, parent) {
		return "", errors.NewInvalidRequest(fmt.Sprintf("file must be directly inside one of %v", dirs))
	}
	if isSymlink(parent) {
		return "", errors.NewInvalidRequest("parent directory must not be a symlink")
	}

	info, err := os.Lstat(abs)
	switch {
	case err == nil && info.Mode()&fs.ModeSymlink != 0:
		return "", errors.NewInvalidRequest("path must not be a symlink")
	case err != nil && mustExist:
		return "", errors.NewNotFound(path)
	}
	return abs, nil
}

// FileSlug turns a description into a short lowercase file name part:
// letters and digits kept, everything else collapsed to single dashes.
func FileSlug(desc string) string {
	var b strings.Builder
	n := 0
	dash := false
	for _, r := range strings.ToLower(desc) {
		if n >= slugMaxRunes {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
				n++
			}
			b.WriteRune(r)
			n++
			dash = false
			continue
		}
		dash = true
	}
	if b.Len() == 0 {
		return "untitled"
	}
	return b.String()
}

func hasDotDot(path string) bool {
	parts := strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' })
	return slices.Contains(parts, "..")
}

func isSymlink(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&fs.ModeSymlink != 0
}
