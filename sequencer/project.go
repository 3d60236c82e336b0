package sequencer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"midiseq/midi"
)

// ProjectFile is the on-disk form of a project.
type ProjectFile struct {
	Tempo       float64      `yaml:"tempo"`
	PPQN        int          `yaml:"ppqn"`
	Instruments []Instrument `yaml:"instruments,omitempty"`
	Tracks      []TrackFile  `yaml:"tracks"`
}

type TrackFile struct {
	Name       string     `yaml:"name"`
	Instrument Instrument `yaml:"instrument"`
	Muted      bool       `yaml:"muted,omitempty"`
	Solo       bool       `yaml:"solo,omitempty"`
	Clips      []ClipFile `yaml:"clips,omitempty"`
}

type ClipFile struct {
	Name       string      `yaml:"name"`
	Instrument *Instrument `yaml:"instrument,omitempty"`
	Events     []EventFile `yaml:"events,omitempty"`
}

type EventFile struct {
	Tick       uint64      `yaml:"tick"`
	ID         string      `yaml:"id"`
	Kind       string      `yaml:"kind"`
	Key        uint8       `yaml:"key,omitempty"`
	Velocity   uint8       `yaml:"velocity,omitempty"`
	Active     bool        `yaml:"active"`
	Instrument *Instrument `yaml:"instrument,omitempty"`
}

// Snapshot copies the project into its file form. Event lists are cloned
// under the lock and encoded after it is released.
func (s *Storage) Snapshot() ProjectFile {
	type pending struct {
		track, clip int
		events      *EventList
	}
	var lists []pending

	// Cloning marks the source tree copy-on-write, so it needs the write lock.
	s.mu.Lock()
	pf := ProjectFile{
		Tempo:       s.tempo,
		PPQN:        s.ppqn,
		Instruments: append([]Instrument(nil), s.instruments...),
		Tracks:      make([]TrackFile, len(s.tracks)),
	}
	for i, t := range s.tracks {
		tf := TrackFile{
			Name:       t.Name,
			Instrument: t.Instrument,
			Muted:      t.Muted,
			Solo:       t.Solo,
		}
		for _, c := range t.Clips {
			lists = append(lists, pending{i, len(tf.Clips), c.Events.Clone()})
			tf.Clips = append(tf.Clips, ClipFile{Name: c.Name, Instrument: cloneInstrument(c.Instrument)})
		}
		pf.Tracks[i] = tf
	}
	s.mu.Unlock()

	for _, p := range lists {
		cf := &pf.Tracks[p.track].Clips[p.clip]
		for tick, e := range p.events.All() {
			cf.Events = append(cf.Events, EventFile{
				Tick:       uint64(tick),
				ID:         e.ID.String(),
				Kind:       e.Message.Kind.String(),
				Key:        e.Message.Key,
				Velocity:   e.Message.Velocity,
				Active:     e.Active,
				Instrument: cloneInstrument(e.Instrument),
			})
		}
	}
	return pf
}

// Restore replaces the project with pf. The file is validated in full
// before anything changes. Clips get fresh ids and the transport returns
// to Stopped at zero.
func (s *Storage) Restore(pf ProjectFile) error {
	ports := s.Ports()

	check := func(in *Instrument) error {
		if in == nil {
			return nil
		}
		return in.validate(ports)
	}

	if !within(pf.Tempo, MinTempo, MaxTempo) {
		return fmt.Errorf("tempo %v: %w", pf.Tempo, ErrInvalidParameter)
	}
	for i := range pf.Instruments {
		if err := check(&pf.Instruments[i]); err != nil {
			return err
		}
	}

	tracks := make([]*Track, len(pf.Tracks))
	for i, tf := range pf.Tracks {
		if err := check(&tf.Instrument); err != nil {
			return fmt.Errorf("track %d: %w", i, err)
		}
		t := NewTrack(TrackID(i), tf.Name, tf.Instrument)
		t.Muted, t.Solo = tf.Muted, tf.Solo
		for _, cf := range tf.Clips {
			if err := check(cf.Instrument); err != nil {
				return fmt.Errorf("clip %q: %w", cf.Name, err)
			}
			c := NewClip(cf.Name)
			c.Instrument = cloneInstrument(cf.Instrument)
			for _, ef := range cf.Events {
				e, err := ef.entry(ports)
				if err != nil {
					return fmt.Errorf("clip %q tick %d: %w", cf.Name, ef.Tick, err)
				}
				c.Events.Insert(Tick(ef.Tick), e)
			}
			t.AddClip(c)
		}
		tracks[i] = t
	}

	return s.edit(func() error {
		s.tempo = pf.Tempo
		if pf.PPQN > 0 {
			s.ppqn = pf.PPQN
		}
		s.instruments = append([]Instrument(nil), pf.Instruments...)
		s.tracks = tracks
		s.transport = Transport{}
		return nil
	})
}

func (ef EventFile) entry(ports int) (EventEntry, error) {
	kind, err := midi.ParseKind(ef.Kind)
	if err != nil {
		return EventEntry{}, fmt.Errorf("%v: %w", err, ErrInvalidParameter)
	}
	id, err := uuid.Parse(ef.ID)
	if err != nil {
		id = uuid.New()
	}
	e := EventEntry{
		ID:         id,
		Message:    midi.Message{Kind: kind, Key: ef.Key, Velocity: ef.Velocity},
		Active:     ef.Active,
		Instrument: cloneInstrument(ef.Instrument),
	}
	if !validMessage(e.Message) {
		return EventEntry{}, fmt.Errorf("message %s: %w", e.Message, ErrInvalidParameter)
	}
	if e.Instrument != nil {
		if err := e.Instrument.validate(ports); err != nil {
			return EventEntry{}, err
		}
	}
	return e, nil
}

// SaveInfo represents a saved project file (for listing)
type SaveInfo struct {
	Filename  string
	Name      string // parsed from filename (empty if unnamed)
	Timestamp time.Time
}

const (
	saveExt         = ".yaml"
	timestampLayout = "2006-01-02_15-04-05"
)

// ProjectStore keeps timestamped saves in one directory per project.
type ProjectStore struct {
	Dir string
}

// DefaultProjectsDir returns ~/.config/midiseq/projects
func DefaultProjectsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "midiseq", "projects"), nil
}

func NewProjectStore(dir string) *ProjectStore {
	return &ProjectStore{Dir: dir}
}

// ProjectDir returns the path to a specific project. The name is not
// checked; operations that touch the disk go through dir.
func (ps *ProjectStore) ProjectDir(projectName string) string {
	return filepath.Join(ps.Dir, projectName)
}

// checkName rejects names that are not a single path element.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("name %q: %w", name, ErrInvalidParameter)
	}
	return nil
}

func (ps *ProjectStore) dir(projectName string) (string, error) {
	if err := checkName(projectName); err != nil {
		return "", err
	}
	return ps.ProjectDir(projectName), nil
}

func (ps *ProjectStore) savePath(projectName, filename string) (string, error) {
	dir, err := ps.dir(projectName)
	if err != nil {
		return "", err
	}
	if err := checkName(filename); err != nil {
		return "", err
	}
	return filepath.Join(dir, filename), nil
}

// ListProjects returns all project folder names
func (ps *ProjectStore) ListProjects() ([]string, error) {
	entries, err := os.ReadDir(ps.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	var projects []string
	for _, entry := range entries {
		if entry.IsDir() {
			projects = append(projects, entry.Name())
		}
	}

	sort.Strings(projects)
	return projects, nil
}

// ListSaves returns timestamped saves for a project, newest first
func (ps *ProjectStore) ListSaves(projectName string) ([]SaveInfo, error) {
	dir, err := ps.dir(projectName)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []SaveInfo{}, nil
		}
		return nil, err
	}

	var saves []SaveInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, saveExt) {
			continue
		}

		// 2024-01-15_14-30-00.yaml or 2024-01-15_14-30-00_name.yaml
		baseName := strings.TrimSuffix(name, saveExt)
		if len(baseName) < len(timestampLayout) {
			continue
		}

		ts, err := time.Parse(timestampLayout, baseName[:len(timestampLayout)])
		if err != nil {
			continue
		}

		saveName := ""
		if len(baseName) > len(timestampLayout)+1 && baseName[len(timestampLayout)] == '_' {
			saveName = baseName[len(timestampLayout)+1:]
		}

		saves = append(saves, SaveInfo{
			Filename:  name,
			Name:      saveName,
			Timestamp: ts,
		})
	}

	sort.Slice(saves, func(i, j int) bool {
		return saves[i].Timestamp.After(saves[j].Timestamp)
	})

	return saves, nil
}

// Save writes a timestamped snapshot of s and returns the filename.
func (ps *ProjectStore) Save(projectName string, s *Storage) (string, error) {
	if projectName == "" {
		projectName = "untitled"
	}

	dir, err := ps.dir(projectName)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	data, err := yaml.Marshal(s.Snapshot())
	if err != nil {
		return "", err
	}

	filename := time.Now().Format(timestampLayout) + saveExt
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0644); err != nil {
		return "", err
	}
	return filename, nil
}

// Load restores a specific save into s, or the most recent one when
// filename is empty.
func (ps *ProjectStore) Load(projectName, filename string, s *Storage) error {
	if filename == "" {
		saves, err := ps.ListSaves(projectName)
		if err != nil {
			return err
		}
		if len(saves) == 0 {
			return fmt.Errorf("no saves found in project %s: %w", projectName, ErrNotFound)
		}
		filename = saves[0].Filename
	}

	path, err := ps.savePath(projectName, filename)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("save %s/%s: %w", projectName, filename, ErrNotFound)
		}
		return err
	}

	var pf ProjectFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("parse %s: %w", filename, err)
	}
	return s.Restore(pf)
}

// CreateProject creates a new empty project folder and returns its
// sanitized name.
func (ps *ProjectStore) CreateProject(name string) (string, error) {
	name = sanitizeFilename(name)
	dir, err := ps.dir(name)
	if err != nil {
		return "", err
	}
	return name, os.MkdirAll(dir, 0755)
}

// DeleteSave deletes a specific save file
func (ps *ProjectStore) DeleteSave(projectName, filename string) error {
	path, err := ps.savePath(projectName, filename)
	if err != nil {
		return err
	}
	return notFound(os.Remove(path))
}

// RenameSave renames a save file (changes the name part, keeps timestamp)
func (ps *ProjectStore) RenameSave(projectName, oldFilename, newName string) (string, error) {
	oldPath, err := ps.savePath(projectName, oldFilename)
	if err != nil {
		return "", err
	}
	baseName := strings.TrimSuffix(oldFilename, saveExt)
	if len(baseName) < len(timestampLayout) {
		return "", fmt.Errorf("save filename %q: %w", oldFilename, ErrInvalidParameter)
	}
	tsStr := baseName[:len(timestampLayout)]

	newFilename := tsStr + saveExt
	if newName != "" {
		newFilename = tsStr + "_" + sanitizeFilename(newName) + saveExt
	}
	newPath, err := ps.savePath(projectName, newFilename)
	if err != nil {
		return "", err
	}

	if err := os.Rename(oldPath, newPath); err != nil {
		return "", notFound(err)
	}
	return newFilename, nil
}

// DeleteProject deletes entire project folder
func (ps *ProjectStore) DeleteProject(name string) error {
	dir, err := ps.dir(name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); err != nil {
		return notFound(err)
	}
	return os.RemoveAll(dir)
}

// RenameProject renames a project folder and returns the sanitized new name.
func (ps *ProjectStore) RenameProject(oldName, newName string) (string, error) {
	from, err := ps.dir(oldName)
	if err != nil {
		return "", err
	}
	newName = sanitizeFilename(newName)
	to, err := ps.dir(newName)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(to); err == nil {
		return "", fmt.Errorf("project %s already exists: %w", newName, ErrInvalidParameter)
	}
	return newName, notFound(os.Rename(from, to))
}

// notFound maps a missing file onto ErrNotFound.
func notFound(err error) error {
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%v: %w", err, ErrNotFound)
	}
	return err
}

// sanitizeFilename removes/replaces characters that are problematic in filenames
func sanitizeFilename(name string) string {
	name = strings.NewReplacer(
		" ", "-", "/", "-", "\\", "-", ":", "-",
		"*", "", "?", "", "\"", "", "<", "", ">", "", "|", "",
	).Replace(name)
	return name
}
