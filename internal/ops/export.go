package ops

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hpungsan/colorbook/internal/errors"
)

// HistoryFileExt is the extension of saved history files.
const HistoryFileExt = ".jsonl"

// ExportHistoryInput contains parameters for the ExportHistory operation.
type ExportHistoryInput struct {
	Path string // optional, default: <base>/exports/history-<timestamp>.jsonl
}

// ExportHistoryOutput contains the result of the ExportHistory operation.
type ExportHistoryOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// ExportHeader is the first line of a saved history file.
type ExportHeader struct {
	ColorbookExport bool   `json:"_colorbook_export"`
	SchemaVersion   string `json:"schema_version"`
	ExportedAt      int64  `json:"exported_at"`
	Selected        *int   `json:"selected,omitempty"`
}

// ExportHistory writes the history ring to a JSONL file: a header line,
// then one record per line, oldest first.
func ExportHistory(ctx context.Context, s *Studio, input ExportHistoryInput) (*ExportHistoryOutput, error) {
	now := time.Now()
	exportPath := input.Path
	if exportPath == "" {
		exportPath = filepath.Join(ExportsDir(s.BaseDir), "history-"+now.Format("2006-01-02T150405")+HistoryFileExt)
	}

	dirs, err := ExportDirs(s.BaseDir, s.Cfg)
	if err != nil {
		return nil, err
	}
	if exportPath, err = ResolvePath(exportPath, HistoryFileExt, false, dirs); err != nil {
		return nil, err
	}

	records := s.History.Records()
	header := ExportHeader{
		ColorbookExport: true,
		SchemaVersion:   "1",
		ExportedAt:      now.Unix(),
		Selected:        s.History.SelectedIndex(),
	}

	err = writeAtomic(exportPath, func(f *os.File) error {
		enc := json.NewEncoder(f)
		if err := enc.Encode(header); err != nil {
			return err
		}
		for _, rec := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("history exported", "path", exportPath, "count", len(records))
	return &ExportHistoryOutput{
		Path:       exportPath,
		Count:      len(records),
		ExportedAt: header.ExportedAt,
	}, nil
}

// writeAtomic writes path through a temp file renamed into place, so an
// existing file survives a failed write.
func writeAtomic(path string, write func(f *os.File) error) error {
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if err := write(file); err != nil {
		if errors.As(err) != nil {
			return err
		}
		return errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlink at the destination.
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("path must not be a symlink")
	}

	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return errors.NewInvalidRequest("destination already exists; choose a new path or delete the existing file")
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize %s: %w", filepath.Base(path), err))
	}

	success = true
	return nil
}
