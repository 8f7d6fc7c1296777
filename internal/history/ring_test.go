package history

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// memKV is an in-memory KV that counts operations.
type memKV struct {
	mu      sync.Mutex
	data    map[string][]byte
	puts    int
	deletes int
	failPut bool
}

func newMemKV() *memKV {
	return &memKV{data: map[string][]byte{}}
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut {
		return errors.New("disk full")
	}
	m.puts++
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.data, key)
	return nil
}

func intPtr(i int) *int { return &i }

func strPtr(s string) *string { return &s }

func openRing(t *testing.T, kv KV) *Ring {
	t.Helper()
	r, err := Open(context.Background(), kv, nil)
	require.NoError(t, err)
	return r
}

func appendN(t *testing.T, r *Ring, prompts ...string) {
	t.Helper()
	for _, p := range prompts {
		_, err := r.Append(context.Background(), Record{OriginalPrompt: p})
		require.NoError(t, err)
	}
}

func prompts(r *Ring) []string {
	var out []string
	for _, rec := range r.Records() {
		out = append(out, rec.OriginalPrompt)
	}
	return out
}

func TestAppend_EvictsOldestAndShiftsSelection(t *testing.T) {
	ctx := context.Background()
	r := openRing(t, nil)

	appendN(t, r, "A", "B", "C", "D", "E")
	ok, err := r.Select(ctx, intPtr(2))
	require.NoError(t, err)
	require.True(t, ok)

	idx, err := r.Append(ctx, Record{OriginalPrompt: "F"})
	require.NoError(t, err)
	require.Equal(t, 4, idx)

	require.Equal(t, []string{"B", "C", "D", "E", "F"}, prompts(r))
	rec, ref, ok := r.Selected()
	require.True(t, ok)
	require.Equal(t, 1, ref.Index)
	require.Equal(t, "C", rec.OriginalPrompt)
}

func TestAppend_EvictingSelectedClearsSelection(t *testing.T) {
	ctx := context.Background()
	r := openRing(t, nil)

	appendN(t, r, "A", "B", "C", "D", "E")
	_, err := r.Select(ctx, intPtr(0))
	require.NoError(t, err)

	appendN(t, r, "F")
	require.Nil(t, r.SelectedIndex())
	_, _, ok := r.Selected()
	require.False(t, ok)
}

func TestAppend_AssignsIDsAndTimestamps(t *testing.T) {
	r := openRing(t, nil)
	appendN(t, r, "A", "B")

	recs := r.Records()
	require.Len(t, recs, 2)
	require.Len(t, recs[0].ID, 26)
	require.NotEqual(t, recs[0].ID, recs[1].ID)
	require.NotZero(t, recs[0].CreatedAt)
	require.Equal(t, recs[0].CreatedAt, recs[0].UpdatedAt)
}

func TestUpdateAt_OutOfRangeIsNoop(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	r := openRing(t, kv)
	appendN(t, r, "A")
	puts := kv.puts

	for _, idx := range []int{-1, 1, 7} {
		ok, err := r.UpdateAt(ctx, idx, Patch{StoryText: strPtr("x")})
		require.NoError(t, err)
		require.False(t, ok)
	}
	require.Equal(t, puts, kv.puts, "no-op updates must not persist")

	ok, err := r.UpdateAt(ctx, 0, Patch{StoryText: strPtr("once upon a time")})
	require.NoError(t, err)
	require.True(t, ok)
	rec, _ := r.Get(0)
	require.Equal(t, "once upon a time", rec.StoryText)
	require.Equal(t, "A", rec.OriginalPrompt, "unset patch fields are kept")
}

func TestUpdateRef_DropsStaleWrites(t *testing.T) {
	ctx := context.Background()
	r := openRing(t, nil)
	appendN(t, r, "A", "B", "C", "D", "E")

	ref, ok := r.RefAt(2)
	require.True(t, ok)

	// Shift everything left; index 2 now holds a different record.
	appendN(t, r, "F")

	ok, err := r.UpdateRef(ctx, ref, Patch{GeneratedImage: []byte("late")})
	require.NoError(t, err)
	require.False(t, ok)
	for _, rec := range r.Records() {
		require.Nil(t, rec.GeneratedImage)
	}

	fresh, _ := r.RefAt(2)
	ok, err = r.UpdateRef(ctx, fresh, Patch{GeneratedImage: []byte("img")})
	require.NoError(t, err)
	require.True(t, ok)
	rec, _ := r.Get(2)
	require.Equal(t, []byte("img"), rec.GeneratedImage)
}

func TestRemove_AdjustsSelection(t *testing.T) {
	tests := []struct {
		name     string
		selected *int
		remove   int
		want     *int
	}{
		{"below selection", intPtr(3), 1, intPtr(2)},
		{"selected itself", intPtr(2), 2, nil},
		{"above selection", intPtr(1), 3, intPtr(1)},
		{"no selection", nil, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			r := openRing(t, nil)
			appendN(t, r, "A", "B", "C", "D", "E")
			_, err := r.Select(ctx, tt.selected)
			require.NoError(t, err)

			ok, err := r.Remove(ctx, tt.remove)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, 4, r.Len())
			require.Equal(t, tt.want, r.SelectedIndex())
		})
	}
}

func TestSelect_RejectsOutOfRange(t *testing.T) {
	ctx := context.Background()
	r := openRing(t, nil)
	appendN(t, r, "A", "B")
	_, err := r.Select(ctx, intPtr(1))
	require.NoError(t, err)

	ok, err := r.Select(ctx, intPtr(2))
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, intPtr(1), r.SelectedIndex(), "rejected select keeps the old selection")

	ok, err = r.Select(ctx, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Nil(t, r.SelectedIndex())
}

func TestSelectionInvariant_RandomOperations(t *testing.T) {
	ctx := context.Background()
	r := openRing(t, newMemKV())
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 2000; i++ {
		switch rng.Intn(5) {
		case 0, 1:
			_, err := r.Append(ctx, Record{OriginalPrompt: "p"})
			require.NoError(t, err)
		case 2:
			_, err := r.Remove(ctx, rng.Intn(Capacity+2)-1)
			require.NoError(t, err)
		case 3:
			_, err := r.Select(ctx, intPtr(rng.Intn(Capacity+2)-1))
			require.NoError(t, err)
		case 4:
			_, err := r.Select(ctx, nil)
			require.NoError(t, err)
		}

		require.LessOrEqual(t, r.Len(), Capacity)
		if sel := r.SelectedIndex(); sel != nil {
			require.GreaterOrEqual(t, *sel, 0)
			require.Less(t, *sel, r.Len())
		}
	}
}

func TestSelectionFollowsRecord(t *testing.T) {
	ctx := context.Background()
	r := openRing(t, nil)
	appendN(t, r, "A", "B", "C", "D", "E")
	_, err := r.Select(ctx, intPtr(4))
	require.NoError(t, err)
	want, _, _ := r.Selected()

	_, err = r.Remove(ctx, 0)
	require.NoError(t, err)
	appendN(t, r, "F", "G")

	got, _, ok := r.Selected()
	require.True(t, ok)
	require.Equal(t, want.ID, got.ID)
}

func TestPersistence_RehydratesAcrossOpen(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	r := openRing(t, kv)
	appendN(t, r, "A", "B", "C")
	_, err := r.Select(ctx, intPtr(1))
	require.NoError(t, err)
	_, err = r.UpdateAt(ctx, 1, Patch{StoryImage: []byte{1, 2, 3}})
	require.NoError(t, err)

	reopened := openRing(t, kv)
	require.Equal(t, r.Records(), reopened.Records())
	require.Equal(t, intPtr(1), reopened.SelectedIndex())
	require.Equal(t, []byte{1, 2, 3}, reopened.SelectedStoryImage())
}

func TestPersistence_OutOfRangeSavedSelectionIgnored(t *testing.T) {
	kv := newMemKV()
	kv.data[StorageKey] = []byte(`{"records":[{"id":"a"},{"id":"b"}],"selected":5}`)

	r := openRing(t, kv)
	require.Equal(t, 2, r.Len())
	require.Nil(t, r.SelectedIndex())
}

func TestPersistence_OversizedSavedRingKeepsNewest(t *testing.T) {
	kv := newMemKV()
	kv.data[StorageKey] = []byte(`{"records":[{"id":"1"},{"id":"2"},{"id":"3"},{"id":"4"},{"id":"5"},{"id":"6"},{"id":"7"}],"selected":3}`)

	r := openRing(t, kv)
	recs := r.Records()
	require.Len(t, recs, Capacity)
	require.Equal(t, "3", recs[0].ID)
	require.Equal(t, "7", recs[4].ID)

	rec, _, ok := r.Selected()
	require.True(t, ok)
	require.Equal(t, "4", rec.ID)
}

func TestPersistence_CorruptSavedRingStartsEmpty(t *testing.T) {
	kv := newMemKV()
	kv.data[StorageKey] = []byte(`{not json`)

	r := openRing(t, kv)
	require.Equal(t, 0, r.Len())
}

func TestPersistence_EmptyRingDeletesKey(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	r := openRing(t, kv)
	appendN(t, r, "A")
	require.Contains(t, kv.data, StorageKey)

	_, err := r.Remove(ctx, 0)
	require.NoError(t, err)
	require.NotContains(t, kv.data, StorageKey)

	appendN(t, r, "B")
	require.NoError(t, r.Clear(ctx))
	require.NotContains(t, kv.data, StorageKey)
	require.Equal(t, 0, r.Len())
}

func TestPersistence_FailureReturnedButMemoryKept(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	r := openRing(t, kv)
	kv.failPut = true

	_, err := r.Append(ctx, Record{OriginalPrompt: "A"})
	require.Error(t, err)
	require.Equal(t, 1, r.Len())
}

func TestReplace_AndParseSnapshot(t *testing.T) {
	ctx := context.Background()
	src := openRing(t, nil)
	appendN(t, src, "A", "B")
	_, err := src.Select(ctx, intPtr(0))
	require.NoError(t, err)

	data, err := src.MarshalJSON()
	require.NoError(t, err)
	records, selected, err := ParseSnapshot(data)
	require.NoError(t, err)

	kv := newMemKV()
	dst := openRing(t, kv)
	require.NoError(t, dst.Replace(ctx, records, selected))
	require.Equal(t, src.Records(), dst.Records())
	require.Equal(t, intPtr(0), dst.SelectedIndex())
	require.Contains(t, kv.data, StorageKey)

	_, _, err = ParseSnapshot([]byte("nope"))
	require.Error(t, err)
}
