package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PanelID identifies one of the builder's side panels.
type PanelID string

const (
	PanelEvents     PanelID = "events"
	PanelCanvas     PanelID = "canvas"
	PanelProperties PanelID = "properties"
)

// Layout holds per-panel visibility and sizes, persisted across sessions so
// the builder reopens the way it was left.
type Layout struct {
	Sizes  map[PanelID]float64 `json:"sizes"`
	Hidden map[PanelID]bool    `json:"hidden"`
}

// DefaultLayout returns the initial panel arrangement.
func DefaultLayout() Layout {
	return Layout{
		Sizes: map[PanelID]float64{
			PanelEvents:     0.2,
			PanelCanvas:     0.55,
			PanelProperties: 0.25,
		},
		Hidden: map[PanelID]bool{},
	}
}

// LayoutStore persists layout preferences.
type LayoutStore interface {
	Load() (Layout, error)
	Save(Layout) error
}

// FileLayoutStore persists the layout as a JSON file.
type FileLayoutStore struct {
	Path string
}

func (s *FileLayoutStore) Load() (Layout, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultLayout(), nil
		}
		return DefaultLayout(), err
	}
	var l Layout
	if err := json.Unmarshal(data, &l); err != nil {
		return DefaultLayout(), err
	}
	if l.Sizes == nil {
		l.Sizes = DefaultLayout().Sizes
	}
	if l.Hidden == nil {
		l.Hidden = map[PanelID]bool{}
	}
	return l, nil
}

func (s *FileLayoutStore) Save(l Layout) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.Path, data, 0o644)
}

// =============================================================================
// Builder session
// =============================================================================

// Session composes the builder shell: the canvas adapter, the node factory,
// the property panel and the panel layout. It owns selection and panel state
// for one open workflow, initialized on Open and cleared on Close.
type Session struct {
	Adapter *Adapter
	Factory *Factory
	Panel   *Panel

	layoutStore LayoutStore
	logger      *zap.Logger

	mu     sync.Mutex
	layout Layout
	open   bool
}

// NewSession wires a builder session for one workflow. layoutStore may be
// nil, in which case layout changes are kept in memory only.
func NewSession(workspaceID, workflowID string, api StoreClient, layoutStore LayoutStore, logger *zap.Logger) *Session {
	adapter := NewAdapter(workspaceID, workflowID, api, logger)
	return &Session{
		Adapter:     adapter,
		Factory:     NewFactory(adapter, api, logger),
		Panel:       NewPanel(workflowID, api, logger),
		layoutStore: layoutStore,
		logger:      logger.With(zap.String("component", "builder_session")),
		layout:      DefaultLayout(),
	}
}

// Open hydrates the canvas, loads workflow metadata and restores the saved
// layout. A missing graph leaves the canvas empty; a metadata load failure
// fails the open.
func (s *Session) Open(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.Adapter.Hydrate(ctx)
		return nil
	})
	g.Go(func() error {
		return s.Panel.Load(ctx)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if s.layoutStore != nil {
		layout, err := s.layoutStore.Load()
		if err != nil {
			s.logger.Warn("layout restore failed, using defaults", zap.Error(err))
			layout = DefaultLayout()
		}
		s.mu.Lock()
		s.layout = layout
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.open = true
	s.mu.Unlock()
	return nil
}

// Layout returns the current panel layout.
func (s *Session) Layout() Layout {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := Layout{
		Sizes:  make(map[PanelID]float64, len(s.layout.Sizes)),
		Hidden: make(map[PanelID]bool, len(s.layout.Hidden)),
	}
	for k, v := range s.layout.Sizes {
		l.Sizes[k] = v
	}
	for k, v := range s.layout.Hidden {
		l.Hidden[k] = v
	}
	return l
}

// TogglePanel flips a panel's visibility and persists the layout.
func (s *Session) TogglePanel(id PanelID) {
	s.mu.Lock()
	s.layout.Hidden[id] = !s.layout.Hidden[id]
	s.mu.Unlock()
	s.persistLayout()
}

// SetPanelSize records a panel's size and persists the layout.
func (s *Session) SetPanelSize(id PanelID, size float64) {
	s.mu.Lock()
	s.layout.Sizes[id] = size
	s.mu.Unlock()
	s.persistLayout()
}

func (s *Session) persistLayout() {
	if s.layoutStore == nil {
		return
	}
	if err := s.layoutStore.Save(s.Layout()); err != nil {
		s.logger.Warn("layout save failed", zap.Error(err))
	}
}

// IsOpen reports whether the session has been opened and not yet closed.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Close drains in-flight write-backs and clears selection and panel state.
func (s *Session) Close() {
	s.Adapter.Wait()
	s.Panel.clear()
	s.mu.Lock()
	s.open = false
	s.mu.Unlock()
}
