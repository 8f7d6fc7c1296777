package ops

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/hpungsan/colorbook/internal/errors"
	"github.com/hpungsan/colorbook/internal/history"
)

// ImportMode controls how imported records combine with the current ring.
type ImportMode string

const (
	ImportModeError   ImportMode = "error"   // replace the ring; abort on any bad line
	ImportModeReplace ImportMode = "replace" // replace the ring; skip bad lines
	ImportModeAppend  ImportMode = "append"  // append, evicting oldest; skip bad lines and known IDs
)

// ImportHistoryInput contains parameters for the ImportHistory operation.
type ImportHistoryInput struct {
	Path string     // required
	Mode ImportMode // default: error
}

// ImportHistoryOutput contains the result of the ImportHistory operation.
type ImportHistoryOutput struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

// ImportError describes one line that could not be imported.
type ImportError struct {
	Line    int    `json:"line"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// maxLineSize bounds one record line; records carry base64 images.
const maxLineSize = 64 << 20

// ImportHistory loads a file written by ExportHistory.
func ImportHistory(ctx context.Context, s *Studio, input ImportHistoryInput) (*ImportHistoryOutput, error) {
	if input.Path == "" {
		return nil, errors.NewInvalidRequest("path is required")
	}
	if input.Mode == "" {
		input.Mode = ImportModeError
	}
	if input.Mode != ImportModeError && input.Mode != ImportModeReplace && input.Mode != ImportModeAppend {
		return nil, errors.NewInvalidRequest("mode must be one of: error, replace, append")
	}

	dirs, err := ExportDirs(s.BaseDir, s.Cfg)
	if err != nil {
		return nil, err
	}
	path, err := ResolvePath(input.Path, HistoryFileExt, true, dirs)
	if err != nil {
		return nil, err
	}

	file, err := openFileNoFollow(path, os.O_RDONLY, 0)
	if err != nil {
		if errors.As(err) != nil {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open history file: %w", err))
	}
	defer file.Close()

	header, records, parseErrors := parseHistoryFile(bufio.NewScanner(file))
	if header == nil {
		return nil, errors.NewInvalidRequest("not a colorbook history file (missing header)")
	}

	s.coloringMu.Lock()
	defer s.coloringMu.Unlock()

	switch input.Mode {
	case ImportModeError:
		if len(parseErrors) > 0 {
			return &ImportHistoryOutput{Errors: parseErrors}, nil
		}
		if err := replaceRing(ctx, s, records, header.Selected, true); err != nil {
			return nil, err
		}
		return &ImportHistoryOutput{Imported: len(records)}, nil

	case ImportModeReplace:
		// Skipped lines shift indices, so the saved selection no longer applies.
		selected := header.Selected
		if len(parseErrors) > 0 {
			selected = nil
		}
		if err := replaceRing(ctx, s, records, selected, false); err != nil {
			return nil, err
		}
		return &ImportHistoryOutput{
			Imported: len(records),
			Skipped:  len(parseErrors),
			Errors:   parseErrors,
		}, nil

	default:
		return importAppend(ctx, s, records, parseErrors)
	}
}

// replaceRing swaps in records and loads the new selection onto the
// canvases. The selected record's images are decoded first: when they are
// bad, strict aborts with nothing changed, otherwise the ring is imported
// with no selection. Caller holds s.coloringMu.
func replaceRing(ctx context.Context, s *Studio, records []lineRecord, selected *int, strict bool) error {
	var images *recordImages
	var selectedID string
	if selected != nil && *selected >= 0 && *selected < len(records) {
		rec := records[*selected].Record
		var err error
		images, err = decodeRecord(s, rec)
		switch {
		case err != nil && strict:
			return err
		case err != nil:
			s.Logger.Warn("dropping imported selection with unreadable images", "id", rec.ID, "error", err)
			selected = nil
		default:
			selectedID = rec.ID
		}
	}

	replaceErr := s.History.Replace(ctx, plainRecords(records), selected)
	if rec, _, ok := s.History.Selected(); ok && rec.ID == selectedID && images != nil {
		if err := images.paint(s); err != nil {
			return err
		}
	}
	if replaceErr != nil {
		return errors.NewInternal(replaceErr)
	}
	return nil
}

func importAppend(ctx context.Context, s *Studio, records []lineRecord, parseErrors []ImportError) (*ImportHistoryOutput, error) {
	out := &ImportHistoryOutput{Errors: parseErrors, Skipped: len(parseErrors)}
	known := make(map[string]bool)
	for _, rec := range s.History.Records() {
		known[rec.ID] = true
	}
	for _, lr := range records {
		if known[lr.ID] {
			out.Skipped++
			out.Errors = append(out.Errors, ImportError{
				Line:    lr.line,
				ID:      lr.ID,
				Code:    "ID_COLLISION",
				Message: fmt.Sprintf("record %q is already in history", lr.ID),
			})
			continue
		}
		if _, err := s.History.Append(ctx, lr.Record); err != nil {
			return nil, errors.NewInternal(err)
		}
		known[lr.ID] = true
		out.Imported++
	}
	return out, nil
}

type lineRecord struct {
	history.Record
	line int
}

func plainRecords(lrs []lineRecord) []history.Record {
	out := make([]history.Record, len(lrs))
	for i, lr := range lrs {
		out[i] = lr.Record
	}
	return out
}

// parseHistoryFile reads the header and records. Bad lines are reported,
// not fatal.
func parseHistoryFile(scanner *bufio.Scanner) (*ExportHeader, []lineRecord, []ImportError) {
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var header *ExportHeader
	var records []lineRecord
	var parseErrors []ImportError
	seen := make(map[string]bool)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		if header == nil {
			var h ExportHeader
			if err := json.Unmarshal(line, &h); err == nil && h.ColorbookExport {
				header = &h
				continue
			}
		}

		var rec history.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				Code:    "PARSE_ERROR",
				Message: fmt.Sprintf("invalid JSON: %v", err),
			})
			continue
		}
		if rec.ID == "" {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				Code:    "INVALID_RECORD",
				Message: "missing id field",
			})
			continue
		}
		if len(rec.GeneratedImage) == 0 {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				ID:      rec.ID,
				Code:    "INVALID_RECORD",
				Message: "missing generated image",
			})
			continue
		}
		if seen[rec.ID] {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				ID:      rec.ID,
				Code:    "ID_COLLISION",
				Message: fmt.Sprintf("record %q appears more than once in the file", rec.ID),
			})
			continue
		}
		seen[rec.ID] = true
		records = append(records, lineRecord{Record: rec, line: lineNum})
	}

	if err := scanner.Err(); err != nil {
		parseErrors = append(parseErrors, ImportError{
			Line:    lineNum,
			Code:    "READ_ERROR",
			Message: fmt.Sprintf("failed to read file: %v", err),
		})
	}
	return header, records, parseErrors
}
