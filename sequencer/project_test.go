package sequencer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"midiseq/midi"
)

func populated(t *testing.T) *Storage {
	t.Helper()
	s := newTestStorage(t, 2)
	require.NoError(t, s.SetTempo(96))
	require.NoError(t, s.SetTrackPort(1, 3))
	require.NoError(t, s.SetTrackMuted(1, true))
	_, err := s.AddInstrument(Instrument{Name: "pad", Port: 1, Channel: 4})
	require.NoError(t, err)

	clip, err := s.NewClip(0, "intro")
	require.NoError(t, err)
	_, err = s.InsertEventBlock(clip, 0, 240, midi.Note{Key: 60, Velocity: 100})
	require.NoError(t, err)
	require.NoError(t, s.SetEventActive(clip, 240, false))
	require.NoError(t, s.SetClipInstrument(clip, &Instrument{Name: "lead", Port: 2, Channel: 1}))
	return s
}

func TestSnapshotRestore(t *testing.T) {
	src := populated(t)
	pf := src.Snapshot()

	data, err := yaml.Marshal(pf)
	require.NoError(t, err)
	var decoded ProjectFile
	require.NoError(t, yaml.Unmarshal(data, &decoded))

	dst := NewStorage(DefaultOptions())
	dst.setTransport(Transport{Running, 99})
	require.NoError(t, dst.Restore(decoded))

	assert.Equal(t, 96.0, dst.Tempo())
	assert.Equal(t, Transport{Stopped, 0}, dst.Transport())
	assert.Equal(t, src.Instruments(), dst.Instruments())

	want, got := src.Tracks(), dst.Tracks()
	require.Len(t, got, 2)
	for i := range want {
		assert.Equal(t, want[i].Name, got[i].Name)
		assert.Equal(t, want[i].Instrument, got[i].Instrument)
		assert.Equal(t, want[i].Muted, got[i].Muted)
		require.Len(t, got[i].Clips, len(want[i].Clips))
	}

	srcEvents := src.AllEvents()
	dstEvents := dst.AllEvents()
	require.Len(t, dstEvents, 2)
	for i := range srcEvents {
		assert.Equal(t, srcEvents[i], dstEvents[i])
	}
}

func TestSnapshotDuringEdits(t *testing.T) {
	s := newTestStorage(t, 1)
	clip, err := s.NewClip(0, "c")
	require.NoError(t, err)

	const n = 500
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < n; i++ {
			assert.NoError(t, s.InsertEvent(clip, Tick(i), NewEntry(midi.NoteOn(60, 100))))
		}
	}()

	last := 0
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		pf := s.Snapshot()
		got := len(pf.Tracks[0].Clips[0].Events)
		assert.GreaterOrEqual(t, got, last)
		last = got
	}
	assert.Len(t, s.Snapshot().Tracks[0].Clips[0].Events, n)

	events, _ := s.ClipEvents(clip)
	assert.Len(t, events, n)
}

func TestRestoreRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		edit func(*ProjectFile)
	}{
		{"tempo", func(pf *ProjectFile) { pf.Tempo = 1000 }},
		{"track port", func(pf *ProjectFile) { pf.Tracks[0].Instrument.Port = 99 }},
		{"clip channel", func(pf *ProjectFile) { pf.Tracks[0].Clips[0].Instrument = &Instrument{Channel: 16} }},
		{"event kind", func(pf *ProjectFile) { pf.Tracks[0].Clips[0].Events[0].Kind = "pitch-bend" }},
		{"event key", func(pf *ProjectFile) { pf.Tracks[0].Clips[0].Events[0].Key = 200 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pf := populated(t).Snapshot()
			tt.edit(&pf)

			dst := newTestStorage(t, 1)
			assert.ErrorIs(t, dst.Restore(pf), ErrInvalidParameter)
			assert.Equal(t, 1, dst.TrackCount())
			assert.Equal(t, 120.0, dst.Tempo())
		})
	}
}

func TestProjectStoreSaveLoad(t *testing.T) {
	store := NewProjectStore(t.TempDir())
	src := populated(t)

	name, err := store.Save("demo", src)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(store.ProjectDir("demo"), name))

	projects, err := store.ListProjects()
	require.NoError(t, err)
	assert.Equal(t, []string{"demo"}, projects)

	dst := NewStorage(DefaultOptions())
	require.NoError(t, store.Load("demo", "", dst))
	assert.Equal(t, 2, dst.TrackCount())
	assert.Equal(t, 96.0, dst.Tempo())

	dst2 := NewStorage(DefaultOptions())
	require.NoError(t, store.Load("demo", name, dst2))
	assert.Equal(t, 2, dst2.TrackCount())

	assert.ErrorIs(t, store.Load("empty", "", dst), ErrNotFound)
}

func TestListSavesNewestFirst(t *testing.T) {
	store := NewProjectStore(t.TempDir())
	_, err := store.CreateProject("p")
	require.NoError(t, err)
	dir := store.ProjectDir("p")

	files := []string{
		"2024-01-15_14-30-00.yaml",
		"2024-03-01_09-00-00_chorus-idea.yaml",
		"2023-12-31_23-59-59.yaml",
		"notes.txt",
		"garbage.yaml",
	}
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("tempo: 120\n"), 0644))
	}

	saves, err := store.ListSaves("p")
	require.NoError(t, err)
	require.Len(t, saves, 3)
	assert.Equal(t, "2024-03-01_09-00-00_chorus-idea.yaml", saves[0].Filename)
	assert.Equal(t, "chorus-idea", saves[0].Name)
	assert.Equal(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), saves[0].Timestamp)
	assert.Equal(t, "", saves[1].Name)
	assert.Equal(t, "2023-12-31_23-59-59.yaml", saves[2].Filename)

	missing, err := store.ListSaves("nope")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestRenameAndDelete(t *testing.T) {
	store := NewProjectStore(t.TempDir())
	_, err := store.CreateProject("p")
	require.NoError(t, err)
	old := "2024-01-15_14-30-00.yaml"
	require.NoError(t, os.WriteFile(filepath.Join(store.ProjectDir("p"), old), nil, 0644))

	renamed, err := store.RenameSave("p", old, "big idea v2?")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15_14-30-00_big-idea-v2.yaml", renamed)

	_, err = store.RenameSave("p", "short.yaml", "x")
	assert.Error(t, err)

	require.NoError(t, store.DeleteSave("p", renamed))
	saves, err := store.ListSaves("p")
	require.NoError(t, err)
	assert.Empty(t, saves)

	name, err := store.RenameProject("p", "new name")
	require.NoError(t, err)
	assert.Equal(t, "new-name", name)
	assert.DirExists(t, store.ProjectDir("new-name"))

	require.NoError(t, store.DeleteProject("new-name"))
	projects, err := store.ListProjects()
	require.NoError(t, err)
	assert.Empty(t, projects)

	assert.ErrorIs(t, store.DeleteProject("new-name"), ErrNotFound)
	assert.ErrorIs(t, store.DeleteSave("new-name", renamed), ErrNotFound)
}

func TestProjectStoreRejectsPathNames(t *testing.T) {
	root := t.TempDir()
	store := NewProjectStore(filepath.Join(root, "projects"))
	_, err := store.CreateProject("p")
	require.NoError(t, err)
	keep := filepath.Join(root, "keep.yaml")
	require.NoError(t, os.WriteFile(keep, nil, 0644))

	names := []string{"", ".", "..", "../..", "a/b", `a\b`}
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, store.DeleteProject(name), ErrInvalidParameter)
			_, err := store.ListSaves(name)
			assert.ErrorIs(t, err, ErrInvalidParameter)
			_, err = store.RenameProject(name, "x")
			assert.ErrorIs(t, err, ErrInvalidParameter)
			assert.ErrorIs(t, store.Load(name, "", NewStorage(DefaultOptions())), ErrInvalidParameter)
		})
	}

	assert.ErrorIs(t, store.DeleteSave("p", "../../keep.yaml"), ErrInvalidParameter)
	assert.ErrorIs(t, store.Load("p", "../../keep.yaml", NewStorage(DefaultOptions())), ErrInvalidParameter)
	_, err = store.RenameProject("p", "..")
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = store.CreateProject("..")
	assert.ErrorIs(t, err, ErrInvalidParameter)

	assert.FileExists(t, keep)
	assert.DirExists(t, store.ProjectDir("p"))
}
