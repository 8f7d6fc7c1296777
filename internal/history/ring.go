// Package history keeps the rolling set of past creations and the pointer to
// the one currently selected. Every mutation is written through to durable
// storage before the call returns.
package history

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Capacity is the maximum number of records kept; the oldest is evicted first.
const Capacity = 5

// StorageKey is the durable key holding the serialized ring.
const StorageKey = "history.ring"

// Record is one creation: the sketch, its outline (possibly colored), and the story built on it.
type Record struct {
	ID                    string `json:"id"`
	SketchImage           []byte `json:"sketch_image,omitempty"`
	GeneratedImage        []byte `json:"generated_image,omitempty"`
	RecognizedDescription string `json:"recognized_description"`
	OriginalPrompt        string `json:"original_prompt"`
	StoryText             string `json:"story_text,omitempty"`
	StoryImage            []byte `json:"story_image,omitempty"`
	CreatedAt             int64  `json:"created_at"`
	UpdatedAt             int64  `json:"updated_at"`
}

// Patch lists fields to merge into a record. Nil fields are left unchanged.
type Patch struct {
	SketchImage           []byte
	GeneratedImage        []byte
	RecognizedDescription *string
	OriginalPrompt        *string
	StoryText             *string
	StoryImage            []byte
}

// Ref identifies a record as it was when an async request was issued.
// A write through a Ref only lands if the same record still sits at Index.
type Ref struct {
	Index int    `json:"index"`
	ID    string `json:"id"`
}

// KV is the durable storage the ring persists to.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// snapshot is the serialized form.
type snapshot struct {
	Records  []Record `json:"records"`
	Selected *int     `json:"selected"`
}

// Ring is the fixed-capacity history with a selection pointer.
// It is safe for concurrent use.
type Ring struct {
	mu       sync.Mutex
	kv       KV
	logger   *slog.Logger
	records  []Record
	selected *int
	now      func() time.Time
}

// Open creates a ring and rehydrates it from kv when a saved ring exists.
// A nil kv gives a memory-only ring. Corrupt saved state is logged and
// discarded rather than failing startup.
func Open(ctx context.Context, kv KV, logger *slog.Logger) (*Ring, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Ring{kv: kv, logger: logger, now: time.Now}
	if kv == nil {
		return r, nil
	}

	data, ok, err := kv.Get(ctx, StorageKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return r, nil
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		logger.Warn("discarding unreadable history", "error", err)
		return r, nil
	}
	r.restore(snap)
	return r, nil
}

// restore loads snap, keeping at most Capacity newest records and honoring
// the saved selection only when it is still in range.
func (r *Ring) restore(snap snapshot) {
	records := snap.Records
	dropped := 0
	if len(records) > Capacity {
		dropped = len(records) - Capacity
		records = records[dropped:]
	}
	r.records = append([]Record(nil), records...)
	r.selected = nil
	if snap.Selected != nil {
		idx := *snap.Selected - dropped
		if idx >= 0 && idx < len(r.records) {
			r.selected = &idx
		} else {
			r.logger.Warn("ignoring out-of-range saved selection", "selected", *snap.Selected, "len", len(snap.Records))
		}
	}
}

// Len returns the number of records.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Records returns a copy of all records, oldest first.
func (r *Ring) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.records...)
}

// Get returns the record at index.
func (r *Ring) Get(index int) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.records) {
		return Record{}, false
	}
	return r.records[index], true
}

// RefAt captures a Ref for the record currently at index.
func (r *Ring) RefAt(index int) (Ref, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.records) {
		return Ref{}, false
	}
	return Ref{Index: index, ID: r.records[index].ID}, true
}

// SelectedIndex returns the selection pointer, or nil.
func (r *Ring) SelectedIndex() *int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.selected == nil {
		return nil
	}
	idx := *r.selected
	return &idx
}

// Selected returns the selected record and a Ref to it.
func (r *Ring) Selected() (Record, Ref, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.selected == nil {
		return Record{}, Ref{}, false
	}
	idx := *r.selected
	rec := r.records[idx]
	return rec, Ref{Index: idx, ID: rec.ID}, true
}

// SelectedStoryImage returns the selected record's story image, if any.
func (r *Ring) SelectedStoryImage() []byte {
	rec, _, ok := r.Selected()
	if !ok {
		return nil
	}
	return rec.StoryImage
}

// Append adds rec, evicting the oldest record when full, and returns the
// index of the new record. A missing ID is assigned.
func (r *Ring) Append(ctx context.Context, rec Record) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.ID == "" {
		id, err := newID()
		if err != nil {
			return -1, err
		}
		rec.ID = id
	}
	now := r.now().Unix()
	if rec.CreatedAt == 0 {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	if len(r.records) >= Capacity {
		r.records = append([]Record(nil), r.records[1:]...)
		r.shiftSelectionAfterRemove(0)
	}
	r.records = append(r.records, rec)
	index := len(r.records) - 1

	return index, r.persistLocked(ctx)
}

// UpdateAt merges patch into the record at index. An out-of-range index is
// a no-op and reports false.
func (r *Ring) UpdateAt(ctx context.Context, index int, patch Patch) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if index < 0 || index >= len(r.records) {
		return false, nil
	}
	r.applyLocked(index, patch)
	return true, r.persistLocked(ctx)
}

// UpdateRef merges patch into the record ref points at, provided that
// record is still at ref.Index. Writes for evicted or reassigned slots are
// dropped and report false.
func (r *Ring) UpdateRef(ctx context.Context, ref Ref, patch Patch) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ref.Index < 0 || ref.Index >= len(r.records) || r.records[ref.Index].ID != ref.ID {
		r.logger.Debug("dropping stale history write", "index", ref.Index, "id", ref.ID)
		return false, nil
	}
	r.applyLocked(ref.Index, patch)
	return true, r.persistLocked(ctx)
}

// Remove deletes the record at index. The selection keeps pointing at the
// same record, or is cleared if that record was removed.
func (r *Ring) Remove(ctx context.Context, index int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if index < 0 || index >= len(r.records) {
		return false, nil
	}
	r.records = append(r.records[:index:index], r.records[index+1:]...)
	r.shiftSelectionAfterRemove(index)
	return true, r.persistLocked(ctx)
}

// Select points the selection at index, or clears it when index is nil.
// Out-of-range indices are rejected as a no-op.
func (r *Ring) Select(ctx context.Context, index *int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if index == nil {
		r.selected = nil
		return true, r.persistLocked(ctx)
	}
	if *index < 0 || *index >= len(r.records) {
		return false, nil
	}
	idx := *index
	r.selected = &idx
	return true, r.persistLocked(ctx)
}

// Clear removes every record and the durable entry.
func (r *Ring) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = nil
	r.selected = nil
	return r.persistLocked(ctx)
}

// Replace swaps in a whole ring, as when importing a saved history.
// Extra records beyond Capacity are dropped oldest-first and an
// out-of-range selection is cleared.
func (r *Ring) Replace(ctx context.Context, records []Record, selected *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restore(snapshot{Records: records, Selected: selected})
	return r.persistLocked(ctx)
}

// MarshalJSON serializes the ring in its durable format.
func (r *Ring) MarshalJSON() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return json.Marshal(snapshot{Records: r.records, Selected: r.selected})
}

// ParseSnapshot decodes data in the durable format.
func ParseSnapshot(data []byte) ([]Record, *int, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, nil, err
	}
	return snap.Records, snap.Selected, nil
}

func (r *Ring) applyLocked(index int, patch Patch) {
	rec := &r.records[index]
	if patch.SketchImage != nil {
		rec.SketchImage = patch.SketchImage
	}
	if patch.GeneratedImage != nil {
		rec.GeneratedImage = patch.GeneratedImage
	}
	if patch.RecognizedDescription != nil {
		rec.RecognizedDescription = *patch.RecognizedDescription
	}
	if patch.OriginalPrompt != nil {
		rec.OriginalPrompt = *patch.OriginalPrompt
	}
	if patch.StoryText != nil {
		rec.StoryText = *patch.StoryText
	}
	if patch.StoryImage != nil {
		rec.StoryImage = patch.StoryImage
	}
	rec.UpdatedAt = r.now().Unix()
}

// shiftSelectionAfterRemove fixes the selection after the record at
// removed has been taken out.
func (r *Ring) shiftSelectionAfterRemove(removed int) {
	if r.selected == nil {
		return
	}
	switch sel := *r.selected; {
	case sel == removed:
		r.selected = nil
	case sel > removed:
		idx := sel - 1
		r.selected = &idx
	}
}

// persistLocked writes the ring, or deletes the durable entry when empty.
func (r *Ring) persistLocked(ctx context.Context) error {
	if r.kv == nil {
		return nil
	}
	if len(r.records) == 0 {
		if err := r.kv.Delete(ctx, StorageKey); err != nil {
			r.logger.Error("failed to clear saved history", "error", err)
			return err
		}
		return nil
	}
	data, err := json.Marshal(snapshot{Records: r.records, Selected: r.selected})
	if err != nil {
		return err
	}
	if err := r.kv.Put(ctx, StorageKey, data); err != nil {
		r.logger.Error("failed to save history", "error", err)
		return err
	}
	return nil
}

// newID generates a new ULID.
func newID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
