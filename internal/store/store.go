// Package store holds the authoritative in-process state of every loaded
// project: settings plus the ordered scene list. All scene writes go through
// UpdateScene, which applies a mutation to the current record, persists the
// result and notifies subscribers.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bobarin/directorscut/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// InterruptedMessage marks scenes whose render was cut off by a restart.
const InterruptedMessage = "Render interrupted"

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrSceneNotFound   = errors.New("scene not found")
	ErrSceneBusy       = errors.New("scene is already rendering")
)

// Persister is durable storage for projects and scenes. Scenes handed to it
// never carry a playback URL. GetProject returns (nil, nil) for an unknown id.
type Persister interface {
	CreateProject(ctx context.Context, project *models.Project) error
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	SaveProject(ctx context.Context, project *models.Project) error
	ListScenes(ctx context.Context, projectID uuid.UUID) ([]models.Scene, error)
	SaveScene(ctx context.Context, scene models.Scene) error
	ReplaceScenes(ctx context.Context, projectID uuid.UUID, scenes []models.Scene) error
}

type EventType string

const (
	EventSceneUpdated   EventType = "scene_updated"
	EventScenesReplaced EventType = "scenes_replaced"
	EventProjectUpdated EventType = "project_updated"
)

// Event is delivered to subscribers after every committed change.
type Event struct {
	Type           EventType          `json:"type"`
	ProjectID      uuid.UUID          `json:"project_id"`
	Scene          *models.Scene      `json:"scene,omitempty"`
	PreviousStatus models.SceneStatus `json:"previous_status,omitempty"`
	Scenes         []models.Scene     `json:"scenes,omitempty"`
	Project        *models.Project    `json:"project,omitempty"`
	At             time.Time          `json:"at"`
}

type projectState struct {
	mu      sync.Mutex
	project models.Project
	scenes  []models.Scene
	index   map[string]int
}

func newProjectState(p models.Project, scenes []models.Scene) *projectState {
	ps := &projectState{project: p}
	ps.setScenes(scenes)
	return ps
}

func (ps *projectState) setScenes(scenes []models.Scene) {
	ps.scenes = make([]models.Scene, len(scenes))
	ps.index = make(map[string]int, len(scenes))
	for i, s := range scenes {
		ps.scenes[i] = s.Clone()
		ps.index[s.ID] = i
	}
}

func (ps *projectState) cloneScenes() []models.Scene {
	out := make([]models.Scene, len(ps.scenes))
	for i, s := range ps.scenes {
		out[i] = s.Clone()
	}
	return out
}

type Store struct {
	persist Persister
	now     func() time.Time

	mu       sync.Mutex
	projects map[uuid.UUID]*projectState
	subs     map[uuid.UUID]map[uint64]func(Event)
	nextSub  uint64
}

// New creates a store. persist may be nil for a purely in-memory store.
func New(persist Persister) *Store {
	return &Store{
		persist:  persist,
		now:      time.Now,
		projects: make(map[uuid.UUID]*projectState),
		subs:     make(map[uuid.UUID]map[uint64]func(Event)),
	}
}

// CreateProject normalizes, persists and caches a new project.
func (s *Store) CreateProject(ctx context.Context, p *models.Project) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	models.NormalizeProject(p)
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now

	if s.persist != nil {
		if err := s.persist.CreateProject(ctx, p); err != nil {
			return fmt.Errorf("persist project: %w", err)
		}
	}

	s.mu.Lock()
	s.projects[p.ID] = newProjectState(*p, nil)
	s.mu.Unlock()
	return nil
}

// load returns the cached project state, reading it from the persister on first use.
func (s *Store) load(ctx context.Context, id uuid.UUID) (*projectState, error) {
	s.mu.Lock()
	ps, ok := s.projects[id]
	s.mu.Unlock()
	if ok {
		return ps, nil
	}
	if s.persist == nil {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}

	p, err := s.persist.GetProject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	scenes, err := s.persist.ListScenes(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load scenes: %w", err)
	}

	models.NormalizeProject(p)
	for i := range scenes {
		models.NormalizeScene(&scenes[i])
		// No render survives a restart; a stored in-flight status is stale
		if scenes[i].Status.InFlight() {
			msg := InterruptedMessage
			scenes[i].Status = models.SceneStatusError
			scenes[i].ErrorMsg = &msg
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.projects[id]; ok {
		return existing, nil
	}
	ps = newProjectState(*p, scenes)
	s.projects[id] = ps
	return ps, nil
}

func (s *Store) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	ps, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	p := ps.project
	return &p, nil
}

// UpdateProject applies mutate to the current project settings.
func (s *Store) UpdateProject(ctx context.Context, id uuid.UUID, mutate func(*models.Project)) (*models.Project, error) {
	ps, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	ps.mu.Lock()
	p := ps.project
	mutate(&p)
	p.ID = id
	models.NormalizeProject(&p)
	p.UpdatedAt = s.now()
	ps.project = p
	s.persistProject(ctx, &p)
	ps.mu.Unlock()

	s.publish(Event{Type: EventProjectUpdated, ProjectID: id, Project: &p, At: p.UpdatedAt})
	out := p
	return &out, nil
}

func (s *Store) GetScene(ctx context.Context, projectID uuid.UUID, sceneID string) (*models.Scene, error) {
	ps, err := s.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	i, ok := ps.index[sceneID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSceneNotFound, sceneID)
	}
	scene := ps.scenes[i].Clone()
	return &scene, nil
}

// ListScenes returns copies of the project's scenes in timeline order.
func (s *Store) ListScenes(ctx context.Context, projectID uuid.UUID) ([]models.Scene, error) {
	ps, err := s.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.cloneScenes(), nil
}

// UpdateScene applies mutate to the current record of the scene. Identity
// fields cannot be changed by the mutation. The persisted copy omits the
// playback URL; persistence failures are logged, not returned.
func (s *Store) UpdateScene(ctx context.Context, projectID uuid.UUID, sceneID string, mutate func(*models.Scene)) (*models.Scene, error) {
	return s.updateScene(ctx, projectID, sceneID, nil, mutate)
}

// ClaimScene moves the scene to generating unless a render already holds it,
// in which case it returns ErrSceneBusy. The check and the write happen under
// one lock, so at most one render owns a scene at a time.
func (s *Store) ClaimScene(ctx context.Context, projectID uuid.UUID, sceneID string) (*models.Scene, error) {
	guard := func(sc *models.Scene) error {
		if sc.Status.InFlight() {
			return fmt.Errorf("%w: %s", ErrSceneBusy, sceneID)
		}
		return nil
	}
	return s.updateScene(ctx, projectID, sceneID, guard, func(sc *models.Scene) {
		sc.Status = models.SceneStatusGenerating
		sc.ErrorMsg = nil
	})
}

func (s *Store) updateScene(ctx context.Context, projectID uuid.UUID, sceneID string, guard func(*models.Scene) error, mutate func(*models.Scene)) (*models.Scene, error) {
	ps, err := s.load(ctx, projectID)
	if err != nil {
		return nil, err
	}

	ps.mu.Lock()
	i, ok := ps.index[sceneID]
	if !ok {
		ps.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSceneNotFound, sceneID)
	}
	if guard != nil {
		if err := guard(&ps.scenes[i]); err != nil {
			ps.mu.Unlock()
			return nil, err
		}
	}

	cur := ps.scenes[i].Clone()
	prev := cur.Status
	mutate(&cur)
	cur.ID = sceneID
	cur.ProjectID = projectID
	cur.SceneIndex = ps.scenes[i].SceneIndex
	if !cur.Status.Valid() {
		cur.Status = models.SceneStatusPending
	}
	cur.UpdatedAt = s.now()
	ps.scenes[i] = cur

	if s.persist != nil {
		if err := s.persist.SaveScene(ctx, cur.Persisted()); err != nil {
			log.Warn().Err(err).Str("project_id", projectID.String()).Str("scene_id", sceneID).Msg("persist scene")
		}
	}
	ps.mu.Unlock()

	event := cur.Clone()
	s.publish(Event{Type: EventSceneUpdated, ProjectID: projectID, Scene: &event, PreviousStatus: prev, At: cur.UpdatedAt})

	out := cur.Clone()
	return &out, nil
}

// ReplaceScenes installs a new storyboard. Scenes are normalized and re-indexed.
func (s *Store) ReplaceScenes(ctx context.Context, projectID uuid.UUID, scenes []models.Scene) error {
	ps, err := s.load(ctx, projectID)
	if err != nil {
		return err
	}

	now := s.now()
	next := make([]models.Scene, len(scenes))
	for i, sc := range scenes {
		sc = sc.Clone()
		models.NormalizeScene(&sc)
		sc.ProjectID = projectID
		sc.SceneIndex = i
		sc.UpdatedAt = now
		next[i] = sc
	}

	ps.mu.Lock()
	if s.persist != nil {
		persisted := make([]models.Scene, len(next))
		for i, sc := range next {
			persisted[i] = sc.Persisted()
		}
		if err := s.persist.ReplaceScenes(ctx, projectID, persisted); err != nil {
			ps.mu.Unlock()
			return fmt.Errorf("persist scenes: %w", err)
		}
	}
	ps.setScenes(next)
	snapshot := ps.cloneScenes()
	ps.mu.Unlock()

	s.publish(Event{Type: EventScenesReplaced, ProjectID: projectID, Scenes: snapshot, At: now})
	return nil
}

// ClearScenes removes the project's storyboard.
func (s *Store) ClearScenes(ctx context.Context, projectID uuid.UUID) error {
	return s.ReplaceScenes(ctx, projectID, nil)
}

// Snapshot returns the project and its scenes, playback URLs included.
func (s *Store) Snapshot(ctx context.Context, projectID uuid.UUID) (*models.ProjectResponse, error) {
	ps, err := s.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return &models.ProjectResponse{Project: ps.project, Scenes: ps.cloneScenes()}, nil
}

// Export returns the durable form of the project: playback URLs are dropped.
func (s *Store) Export(ctx context.Context, projectID uuid.UUID) (*models.ProjectExport, error) {
	snap, err := s.Snapshot(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := &models.ProjectExport{Project: snap.Project, Scenes: make([]models.Scene, len(snap.Scenes))}
	for i, sc := range snap.Scenes {
		out.Scenes[i] = sc.Persisted()
	}
	return out, nil
}

// Subscribe registers fn for every event of the project and returns a
// function that removes the registration. fn must not block.
func (s *Store) Subscribe(projectID uuid.UUID, fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSub++
	id := s.nextSub
	if s.subs[projectID] == nil {
		s.subs[projectID] = make(map[uint64]func(Event))
	}
	s.subs[projectID][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs[projectID], id)
			if len(s.subs[projectID]) == 0 {
				delete(s.subs, projectID)
			}
		})
	}
}

func (s *Store) publish(e Event) {
	s.mu.Lock()
	fns := make([]func(Event), 0, len(s.subs[e.ProjectID]))
	for _, fn := range s.subs[e.ProjectID] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}

func (s *Store) persistProject(ctx context.Context, p *models.Project) {
	if s.persist == nil {
		return
	}
	if err := s.persist.SaveProject(ctx, p); err != nil {
		log.Warn().Err(err).Str("project_id", p.ID.String()).Msg("persist project")
	}
}
