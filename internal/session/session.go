package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kobzarvs/qex/internal/buffer"
	"github.com/kobzarvs/qex/internal/logger"
)

// MarkState is one saved user mark.
type MarkState struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// FileState stores the state of a single file
type FileState struct {
	CursorLine int                  `json:"cursor_line"`
	CursorCol  int                  `json:"cursor_col"`
	Top        int                  `json:"top,omitempty"`
	Marks      map[string]MarkState `json:"marks,omitempty"`
}

// Session stores every file's state
type Session struct {
	Files     map[string]FileState `json:"files"`
	LastSaved time.Time            `json:"last_saved"`
}

// Manager handles session persistence
type Manager struct {
	mu       sync.RWMutex
	session  Session
	path     string
	dirty    bool
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewManager loads the session from the state directory and saves it
// every interval. An interval of zero disables autosave.
func NewManager(interval time.Duration) (*Manager, error) {
	path, err := sessionPath()
	if err != nil {
		return nil, err
	}
	return Open(path, interval), nil
}

// Open is NewManager with an explicit file.
func Open(path string, interval time.Duration) *Manager {
	m := &Manager{
		session: Session{
			Files: make(map[string]FileState),
		},
		path:     path,
		stopChan: make(chan struct{}),
	}
	m.load()
	if interval > 0 {
		go m.autosaveLoop(interval)
	}
	return m
}

func sessionPath() (string, error) {
	// XDG state directory
	stateDir := os.Getenv("XDG_STATE_HOME")
	if stateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		stateDir = filepath.Join(home, ".local", "state")
	}
	dir := filepath.Join(stateDir, "qex")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "session.json"), nil
}

func (m *Manager) Path() string { return m.path }

func (m *Manager) load() {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return // No existing session, start fresh
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		logger.Warn("session file unreadable", "path", m.path, "err", err)
		return
	}
	if session.Files == nil {
		session.Files = make(map[string]FileState)
	}
	m.session = session
}

// Save persists the session to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.dirty {
		return nil
	}

	m.session.LastSaved = time.Now()
	data, err := json.MarshalIndent(m.session, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return err
	}

	m.dirty = false
	return nil
}

// ForceSave saves even if not dirty
func (m *Manager) ForceSave() error {
	m.mu.Lock()
	m.dirty = true
	m.mu.Unlock()
	return m.Save()
}

// GetFileState returns the saved state for a file
func (m *Manager) GetFileState(absPath string) (FileState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.session.Files[absPath]
	return state, ok
}

// SetFileState updates the state for a file
func (m *Manager) SetFileState(absPath string, state FileState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.Files[absPath] = state
	m.dirty = true
}

// Capture records the cursor, first visible line and live user marks of b.
func (m *Manager) Capture(b *buffer.Buffer, cursor buffer.Position, top int) {
	path, err := filepath.Abs(b.Path())
	if err != nil || b.Path() == "" {
		return
	}
	state := FileState{CursorLine: cursor.Line, CursorCol: cursor.Column, Top: top}
	for _, mk := range b.Marks() {
		if !mk.UserSet || mk.Deleted {
			continue
		}
		if state.Marks == nil {
			state.Marks = make(map[string]MarkState)
		}
		state.Marks[string(mk.Name)] = MarkState{Line: mk.Line, Column: mk.Column}
	}
	m.SetFileState(path, state)
}

// Restore applies the saved state of b's file. Positions past the end of
// the file are dropped. It returns the saved cursor and first visible line.
func (m *Manager) Restore(b *buffer.Buffer) (buffer.Position, int, bool) {
	path, err := filepath.Abs(b.Path())
	if err != nil || b.Path() == "" {
		return buffer.Position{}, 0, false
	}
	state, ok := m.GetFileState(path)
	if !ok {
		return buffer.Position{}, 0, false
	}
	last, err := b.Last()
	if err != nil {
		return buffer.Position{}, 0, false
	}
	for name, ms := range state.Marks {
		if len(name) != 1 || ms.Line < 1 || ms.Line > last {
			continue
		}
		if err := b.SetMark(name[0], buffer.Position{Line: ms.Line, Column: ms.Column}); err != nil {
			logger.Debug("session mark skipped", "mark", name, "err", err)
		}
	}
	if state.CursorLine < 1 || state.CursorLine > last {
		return buffer.Position{}, 0, false
	}
	return buffer.Position{Line: state.CursorLine, Column: state.CursorCol}, state.Top, true
}

func (m *Manager) autosaveLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.Save(); err != nil {
				logger.Warn("session autosave failed", "path", m.path, "err", err)
			}
		case <-m.stopChan:
			return
		}
	}
}

// Stop stops the autosave loop and saves final state
func (m *Manager) Stop() error {
	m.stopOnce.Do(func() { close(m.stopChan) })
	return m.ForceSave()
}
