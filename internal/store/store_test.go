package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bobarin/directorscut/internal/models"
	"github.com/google/uuid"
)

type memPersister struct {
	mu       sync.Mutex
	projects map[uuid.UUID]models.Project
	scenes   map[uuid.UUID][]models.Scene
	saves    int
	failSave bool
}

func newMemPersister() *memPersister {
	return &memPersister{
		projects: make(map[uuid.UUID]models.Project),
		scenes:   make(map[uuid.UUID][]models.Scene),
	}
}

func (m *memPersister) CreateProject(ctx context.Context, p *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = *p
	return nil
}

func (m *memPersister) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memPersister) SaveProject(ctx context.Context, p *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = *p
	return nil
}

func (m *memPersister) ListScenes(ctx context.Context, projectID uuid.UUID) ([]models.Scene, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Scene(nil), m.scenes[projectID]...), nil
}

func (m *memPersister) SaveScene(ctx context.Context, scene models.Scene) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.failSave {
		return errors.New("disk full")
	}
	list := m.scenes[scene.ProjectID]
	for i := range list {
		if list[i].ID == scene.ID {
			list[i] = scene
			return nil
		}
	}
	m.scenes[scene.ProjectID] = append(list, scene)
	return nil
}

func (m *memPersister) ReplaceScenes(ctx context.Context, projectID uuid.UUID, scenes []models.Scene) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scenes[projectID] = append([]models.Scene(nil), scenes...)
	return nil
}

func seed(t *testing.T, s *Store) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	p := &models.Project{Lyrics: "la la", AspectRatio: "4:3"}
	if err := s.CreateProject(ctx, p); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	scenes := []models.Scene{
		{ID: "scene-0", StartTime: 0, EndTime: 5, Description: "intro", VisualPrompt: "city at dusk"},
		{ID: "scene-1", StartTime: 5, EndTime: 10, VisualPrompt: "rooftop", Status: "bogus"},
	}
	if err := s.ReplaceScenes(ctx, p.ID, scenes); err != nil {
		t.Fatalf("ReplaceScenes: %v", err)
	}
	return p.ID
}

func strPtr(s string) *string { return &s }

func TestCreateProjectNormalizes(t *testing.T) {
	s := New(nil)
	id := seed(t, s)

	p, err := s.GetProject(context.Background(), id)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if p.AspectRatio != models.AspectRatioLandscape {
		t.Errorf("expected aspect ratio 16:9, got %s", p.AspectRatio)
	}
	if p.ClipLength != models.DefaultClipLength {
		t.Errorf("expected default clip length, got %d", p.ClipLength)
	}
	if p.PlannerModel != models.PlannerModels[0] {
		t.Errorf("expected default planner model, got %s", p.PlannerModel)
	}
}

func TestReplaceScenesNormalizes(t *testing.T) {
	s := New(nil)
	id := seed(t, s)

	scenes, err := s.ListScenes(context.Background(), id)
	if err != nil {
		t.Fatalf("ListScenes: %v", err)
	}
	if len(scenes) != 2 {
		t.Fatalf("expected 2 scenes, got %d", len(scenes))
	}
	if scenes[1].Status != models.SceneStatusPending {
		t.Errorf("invalid status should become pending, got %s", scenes[1].Status)
	}
	if scenes[1].Description != models.DefaultSceneTitle {
		t.Errorf("empty description should become %q, got %q", models.DefaultSceneTitle, scenes[1].Description)
	}
	if scenes[1].SceneIndex != 1 || scenes[1].ProjectID != id {
		t.Errorf("scene identity not assigned: %+v", scenes[1])
	}
}

func TestUpdateSceneAppliesToCurrentRecord(t *testing.T) {
	s := New(nil)
	id := seed(t, s)
	ctx := context.Background()

	// Two independent mutations must both survive
	s.UpdateScene(ctx, id, "scene-0", func(sc *models.Scene) { sc.Status = models.SceneStatusGenerating })
	s.UpdateScene(ctx, id, "scene-0", func(sc *models.Scene) { sc.ErrorMsg = strPtr("note") })

	sc, err := s.GetScene(ctx, id, "scene-0")
	if err != nil {
		t.Fatalf("GetScene: %v", err)
	}
	if sc.Status != models.SceneStatusGenerating || sc.ErrorMsg == nil {
		t.Errorf("lost update: %+v", sc)
	}
}

func TestUpdateSceneIdentityIsImmutable(t *testing.T) {
	s := New(nil)
	id := seed(t, s)

	got, err := s.UpdateScene(context.Background(), id, "scene-0", func(sc *models.Scene) {
		sc.ID = "hijack"
		sc.SceneIndex = 9
	})
	if err != nil {
		t.Fatalf("UpdateScene: %v", err)
	}
	if got.ID != "scene-0" || got.SceneIndex != 0 {
		t.Errorf("identity changed: %+v", got)
	}
}

func TestUpdateSceneUnknown(t *testing.T) {
	s := New(nil)
	id := seed(t, s)

	_, err := s.UpdateScene(context.Background(), id, "missing", func(*models.Scene) {})
	if !errors.Is(err, ErrSceneNotFound) {
		t.Fatalf("expected ErrSceneNotFound, got %v", err)
	}
	_, err = s.GetProject(context.Background(), uuid.New())
	if !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}
}

func TestPersistedSceneOmitsVideoURL(t *testing.T) {
	mem := newMemPersister()
	s := New(mem)
	id := seed(t, s)

	_, err := s.UpdateScene(context.Background(), id, "scene-0", func(sc *models.Scene) {
		sc.Status = models.SceneStatusDone
		sc.VideoURI = strPtr("https://provider/video-0")
		sc.VideoURL = strPtr("https://cdn/scene-0.mp4")
	})
	if err != nil {
		t.Fatalf("UpdateScene: %v", err)
	}

	stored := mem.scenes[id][0]
	if stored.VideoURL != nil {
		t.Errorf("video URL must not be persisted, got %s", *stored.VideoURL)
	}
	if stored.VideoURI == nil || *stored.VideoURI != "https://provider/video-0" {
		t.Errorf("video URI should be persisted, got %v", stored.VideoURI)
	}

	live, _ := s.GetScene(context.Background(), id, "scene-0")
	if live.VideoURL == nil {
		t.Error("in-memory scene should keep its video URL")
	}

	exp, err := s.Export(context.Background(), id)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if exp.Scenes[0].VideoURL != nil {
		t.Error("export must not contain video URL")
	}
}

func TestReloadDropsVideoURL(t *testing.T) {
	mem := newMemPersister()
	s := New(mem)
	id := seed(t, s)
	ctx := context.Background()

	s.UpdateScene(ctx, id, "scene-0", func(sc *models.Scene) {
		sc.Status = models.SceneStatusDone
		sc.VideoURI = strPtr("https://provider/video-0")
		sc.VideoURL = strPtr("https://cdn/scene-0.mp4")
	})

	reloaded := New(mem)
	sc, err := reloaded.GetScene(ctx, id, "scene-0")
	if err != nil {
		t.Fatalf("GetScene after reload: %v", err)
	}
	if sc.VideoURL != nil {
		t.Error("video URL should be absent after reload")
	}
	if sc.VideoURI == nil || sc.Status != models.SceneStatusDone {
		t.Errorf("unexpected reloaded scene %+v", sc)
	}
}

func TestPersistFailureIsNotSurfaced(t *testing.T) {
	mem := newMemPersister()
	s := New(mem)
	id := seed(t, s)
	mem.failSave = true

	if _, err := s.UpdateScene(context.Background(), id, "scene-0", func(sc *models.Scene) {
		sc.Status = models.SceneStatusGenerating
	}); err != nil {
		t.Fatalf("persist failure leaked: %v", err)
	}
	sc, _ := s.GetScene(context.Background(), id, "scene-0")
	if sc.Status != models.SceneStatusGenerating {
		t.Error("in-memory update should still apply")
	}
}

func TestSubscribe(t *testing.T) {
	s := New(nil)
	id := seed(t, s)

	var events []Event
	unsubscribe := s.Subscribe(id, func(e Event) { events = append(events, e) })

	s.UpdateScene(context.Background(), id, "scene-1", func(sc *models.Scene) { sc.Status = models.SceneStatusGenerating })
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.Type != EventSceneUpdated || e.Scene.ID != "scene-1" || e.PreviousStatus != models.SceneStatusPending {
		t.Errorf("unexpected event %+v", e)
	}

	unsubscribe()
	unsubscribe()
	s.UpdateScene(context.Background(), id, "scene-1", func(sc *models.Scene) { sc.Status = models.SceneStatusDone })
	if len(events) != 1 {
		t.Errorf("received event after unsubscribe")
	}
}

func TestConcurrentUpdates(t *testing.T) {
	s := New(nil)
	id := seed(t, s)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.UpdateScene(context.Background(), id, "scene-0", func(sc *models.Scene) {
				sc.VisualPrompt += "x"
			})
		}()
	}
	wg.Wait()

	sc, _ := s.GetScene(context.Background(), id, "scene-0")
	if got := len(sc.VisualPrompt) - len("city at dusk"); got != 50 {
		t.Errorf("expected 50 appended characters, got %d", got)
	}
}

func TestReloadMarksInterruptedRenders(t *testing.T) {
	persist := newMemPersister()
	ctx := context.Background()
	s := New(persist)
	p := &models.Project{Lyrics: "x"}
	if err := s.CreateProject(ctx, p); err != nil {
		t.Fatal(err)
	}
	s.ReplaceScenes(ctx, p.ID, []models.Scene{{ID: "a", VisualPrompt: "a"}, {ID: "b", VisualPrompt: "b"}})
	s.UpdateScene(ctx, p.ID, "a", func(sc *models.Scene) { sc.Status = models.SceneStatusSanitizing })

	reloaded := New(persist)
	a, err := reloaded.GetScene(ctx, p.ID, "a")
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != models.SceneStatusError || a.ErrorMsg == nil || *a.ErrorMsg != InterruptedMessage {
		t.Errorf("stale in-flight scene should be an error, got %s %v", a.Status, a.ErrorMsg)
	}
	b, _ := reloaded.GetScene(ctx, p.ID, "b")
	if b.Status != models.SceneStatusPending {
		t.Errorf("pending scene should stay pending, got %s", b.Status)
	}
}

func TestClaimSceneIsExclusive(t *testing.T) {
	s := New(nil)
	id := seed(t, s)
	s.UpdateScene(context.Background(), id, "scene-0", func(sc *models.Scene) {
		sc.Status = models.SceneStatusError
		sc.ErrorMsg = strPtr("old failure")
	})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed int
		busy    int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ClaimScene(context.Background(), id, "scene-0")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				claimed++
			case errors.Is(err, ErrSceneBusy):
				busy++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if claimed != 1 || busy != 19 {
		t.Fatalf("claimed=%d busy=%d, want exactly one claim", claimed, busy)
	}
	sc, _ := s.GetScene(context.Background(), id, "scene-0")
	if sc.Status != models.SceneStatusGenerating || sc.ErrorMsg != nil {
		t.Errorf("claimed scene should be generating with no error, got %s %v", sc.Status, sc.ErrorMsg)
	}
}

func TestClaimSceneAfterRenderFinishes(t *testing.T) {
	s := New(nil)
	id := seed(t, s)
	ctx := context.Background()

	if _, err := s.ClaimScene(ctx, id, "scene-0"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	s.UpdateScene(ctx, id, "scene-0", func(sc *models.Scene) { sc.Status = models.SceneStatusSanitizing })
	if _, err := s.ClaimScene(ctx, id, "scene-0"); !errors.Is(err, ErrSceneBusy) {
		t.Fatalf("sanitizing scene must not be claimable, got %v", err)
	}
	s.UpdateScene(ctx, id, "scene-0", func(sc *models.Scene) { sc.Status = models.SceneStatusDone })
	if _, err := s.ClaimScene(ctx, id, "scene-0"); err != nil {
		t.Fatalf("finished scene should be claimable again: %v", err)
	}
	if _, err := s.ClaimScene(ctx, id, "missing"); !errors.Is(err, ErrSceneNotFound) {
		t.Errorf("expected ErrSceneNotFound, got %v", err)
	}
}
