package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bobarin/directorscut/internal/app"
	"github.com/bobarin/directorscut/internal/db"
	"github.com/bobarin/directorscut/internal/models"
	"github.com/bobarin/directorscut/internal/storage"
	"github.com/bobarin/directorscut/internal/store"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type fakeDB struct {
	mu     sync.Mutex
	jobs   []models.Job
	assets []models.Asset
}

func (f *fakeDB) CreateAsset(ctx context.Context, asset *models.Asset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets = append(f.assets, *asset)
	return nil
}

func (f *fakeDB) GetProjectAssets(ctx context.Context, projectID uuid.UUID) ([]models.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Asset
	for _, a := range f.assets {
		if a.ProjectID == projectID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeDB) ListProjects(ctx context.Context, limit, offset int) ([]models.Project, error) {
	return nil, nil
}

func (f *fakeDB) CreateJob(ctx context.Context, job *models.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, *job)
	return nil
}

func (f *fakeDB) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.ID == id {
			return &j, nil
		}
	}
	return nil, db.ErrNotFound
}

func (f *fakeDB) GetProjectJobs(ctx context.Context, projectID uuid.UUID) ([]models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Job
	for _, j := range f.jobs {
		if j.ProjectID == projectID {
			out = append(out, j)
		}
	}
	return out, nil
}

type fakeQueue struct {
	mu     sync.Mutex
	pushed []string
}

func (q *fakeQueue) push(s string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pushed = append(q.pushed, s)
	return nil
}

func (q *fakeQueue) GetQueueLength(ctx context.Context, queueName string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.pushed)), nil
}

func (q *fakeQueue) EnqueuePlanStoryboard(ctx context.Context, projectID, jobID uuid.UUID) error {
	return q.push("plan")
}

func (q *fakeQueue) EnqueueRenderScene(ctx context.Context, projectID uuid.UUID, sceneID string, jobID uuid.UUID) error {
	return q.push("scene:" + sceneID)
}

func (q *fakeQueue) EnqueueRenderBatch(ctx context.Context, projectID, jobID uuid.UUID) error {
	return q.push("batch")
}

type testServer struct {
	srv   *httptest.Server
	store *store.Store
	db    *fakeDB
	queue *fakeQueue
}

func newTestServer(t *testing.T, apiKey string) *testServer {
	t.Helper()
	disk, err := storage.NewDisk(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	st := store.New(nil)
	fdb, fq := &fakeDB{}, &fakeQueue{}
	pipeline := &app.Pipeline{Store: st, Publisher: storage.NewPublisher(disk, fdb)}

	srv := httptest.NewServer(NewRouter(NewHandler(pipeline, fdb, fq), RouterConfig{BackendAPIKey: apiKey}))
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, store: st, db: fdb, queue: fq}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, ts.srv.URL+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func (ts *testServer) seed(t *testing.T, scenes ...models.Scene) uuid.UUID {
	t.Helper()
	p := &models.Project{Lyrics: "late night drive", AudioDuration: 10, ClipLength: 5}
	if err := ts.store.CreateProject(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	if len(scenes) > 0 {
		if err := ts.store.ReplaceScenes(context.Background(), p.ID, scenes); err != nil {
			t.Fatal(err)
		}
	}
	return p.ID
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, "secret")
	resp := ts.do(t, http.MethodGet, "/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Status string           `json:"status"`
		Queues map[string]int64 `json:"queues"`
	}
	decode(t, resp, &body)
	if body.Status != "ok" || len(body.Queues) != 3 {
		t.Errorf("unexpected health body: %+v", body)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	ts := newTestServer(t, "secret")

	resp := ts.do(t, http.MethodGet, "/v1/projects", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without key, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.srv.URL+"/v1/projects", nil)
	req.Header.Set("X-API-Key", "wrong")
	resp, _ = http.DefaultClient.Do(req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 with wrong key, got %d", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodGet, ts.srv.URL+"/v1/projects", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, _ = http.DefaultClient.Do(req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 with bearer key, got %d", resp.StatusCode)
	}
}

func TestCreateAndGetProject(t *testing.T) {
	ts := newTestServer(t, "")

	aspect := "4:3"
	resp := ts.do(t, http.MethodPost, "/v1/projects", models.CreateProjectRequest{Lyrics: " neon rain ", AspectRatio: &aspect})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created models.ProjectResponse
	decode(t, resp, &created)
	if created.Lyrics != "neon rain" || created.AspectRatio != models.AspectRatioLandscape {
		t.Errorf("unexpected project %+v", created.Project)
	}
	if created.ClipLength != models.DefaultClipLength || created.Status != models.ProjectStatusDraft {
		t.Errorf("defaults not applied: %+v", created.Project)
	}

	resp = ts.do(t, http.MethodGet, "/v1/projects/"+created.ID.String(), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	if resp := ts.do(t, http.MethodGet, "/v1/projects/"+uuid.NewString(), nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown project, got %d", resp.StatusCode)
	}
	if resp := ts.do(t, http.MethodGet, "/v1/projects/not-a-uuid", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for bad id, got %d", resp.StatusCode)
	}
}

func TestUpdateProjectClearsStyleImage(t *testing.T) {
	ts := newTestServer(t, "")
	id := ts.seed(t)
	b64, mime := "aGVsbG8=", "image/png"
	ts.store.UpdateProject(context.Background(), id, func(p *models.Project) {
		p.StyleImageBase64, p.StyleImageMime = &b64, &mime
	})

	empty := ""
	resp := ts.do(t, http.MethodPatch, "/v1/projects/"+id.String(), models.UpdateProjectRequest{StyleImageBase64: &empty})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	p, _ := ts.store.GetProject(context.Background(), id)
	if p.HasStyleImage() {
		t.Error("style image should be cleared")
	}
}

func TestPlanRequiresAudio(t *testing.T) {
	ts := newTestServer(t, "")
	p := &models.Project{Lyrics: "x"}
	ts.store.CreateProject(context.Background(), p)

	if resp := ts.do(t, http.MethodPost, "/v1/projects/"+p.ID.String()+"/plan", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 without audio, got %d", resp.StatusCode)
	}

	id := ts.seed(t)
	resp := ts.do(t, http.MethodPost, "/v1/projects/"+id.String()+"/plan", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var job models.JobResponse
	decode(t, resp, &job)
	if job.Type != models.JobTypePlanStoryboard || job.Status != models.JobStatusQueued {
		t.Errorf("unexpected job %+v", job)
	}
	if len(ts.queue.pushed) != 1 || ts.queue.pushed[0] != "plan" {
		t.Errorf("unexpected queue %v", ts.queue.pushed)
	}
}

func TestRenderSceneConflictWhileInFlight(t *testing.T) {
	ts := newTestServer(t, "")
	id := ts.seed(t,
		models.Scene{ID: "scene-0", VisualPrompt: "a", Status: models.SceneStatusGenerating},
		models.Scene{ID: "scene-1", VisualPrompt: "b"},
	)

	if resp := ts.do(t, http.MethodPost, "/v1/projects/"+id.String()+"/scenes/scene-0/render", nil); resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for generating scene, got %d", resp.StatusCode)
	}
	if resp := ts.do(t, http.MethodPost, "/v1/projects/"+id.String()+"/scenes/scene-9/render", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown scene, got %d", resp.StatusCode)
	}

	resp := ts.do(t, http.MethodPost, "/v1/projects/"+id.String()+"/scenes/scene-1/render", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if ts.queue.pushed[0] != "scene:scene-1" {
		t.Errorf("unexpected queue %v", ts.queue.pushed)
	}
	if len(ts.db.jobs) != 1 || ts.db.jobs[0].SceneID == nil || *ts.db.jobs[0].SceneID != "scene-1" {
		t.Errorf("job row not recorded: %+v", ts.db.jobs)
	}

	// the job is visible through the jobs endpoints
	var job models.Job
	decode(t, ts.do(t, http.MethodGet, "/v1/jobs/"+ts.db.jobs[0].ID.String(), nil), &job)
	if job.Type != models.JobTypeRenderScene {
		t.Errorf("unexpected job %+v", job)
	}
	if resp := ts.do(t, http.MethodGet, "/v1/jobs/"+uuid.NewString(), nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown job, got %d", resp.StatusCode)
	}
}

func TestRenderProjectNeedsStoryboard(t *testing.T) {
	ts := newTestServer(t, "")
	id := ts.seed(t)
	if resp := ts.do(t, http.MethodPost, "/v1/projects/"+id.String()+"/render", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}

	id = ts.seed(t, models.Scene{ID: "scene-0", VisualPrompt: "a"})
	if resp := ts.do(t, http.MethodPost, "/v1/projects/"+id.String()+"/render", nil); resp.StatusCode != http.StatusAccepted {
		t.Errorf("expected 202, got %d", resp.StatusCode)
	}
}

func TestExportOmitsPlaybackURL(t *testing.T) {
	ts := newTestServer(t, "")
	id := ts.seed(t, models.Scene{ID: "scene-0", VisualPrompt: "a"})
	uri, url := "https://gen/v1", "https://cdn/v1"
	ts.store.UpdateScene(context.Background(), id, "scene-0", func(s *models.Scene) {
		s.Status = models.SceneStatusDone
		s.VideoURI, s.VideoURL = &uri, &url
	})

	resp := ts.do(t, http.MethodGet, "/v1/projects/"+id.String()+"/export", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if strings.Contains(buf.String(), "video_url") {
		t.Errorf("export should not carry video_url: %s", buf.String())
	}
	if !strings.Contains(buf.String(), uri) {
		t.Errorf("export should carry video_uri: %s", buf.String())
	}
}

func TestClearScenes(t *testing.T) {
	ts := newTestServer(t, "")
	id := ts.seed(t, models.Scene{ID: "scene-0", VisualPrompt: "a", Status: models.SceneStatusSanitizing})

	if resp := ts.do(t, http.MethodDelete, "/v1/projects/"+id.String()+"/scenes", nil); resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 while rendering, got %d", resp.StatusCode)
	}

	ts.store.UpdateScene(context.Background(), id, "scene-0", func(s *models.Scene) { s.Status = models.SceneStatusError })
	if resp := ts.do(t, http.MethodDelete, "/v1/projects/"+id.String()+"/scenes", nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	scenes, _ := ts.store.ListScenes(context.Background(), id)
	if len(scenes) != 0 {
		t.Errorf("scenes not cleared: %v", scenes)
	}
}

func TestUploadAudioWithDeclaredDuration(t *testing.T) {
	ts := newTestServer(t, "")
	id := ts.seed(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("audio", "song.mp3")
	fw.Write([]byte("ID3fake"))
	mw.WriteField("duration", "42.5")
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.srv.URL+"/v1/projects/"+id.String()+"/audio", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	p, _ := ts.store.GetProject(context.Background(), id)
	if p.AudioDuration != 42.5 || p.AudioPath == nil || !strings.HasSuffix(*p.AudioPath, "audio.mp3") {
		t.Errorf("audio not recorded: %v %v", p.AudioDuration, p.AudioPath)
	}

	var assets []models.Asset
	decode(t, ts.do(t, http.MethodGet, "/v1/projects/"+id.String()+"/assets", nil), &assets)
	if len(assets) != 1 || assets[0].Type != models.AssetTypeAudio {
		t.Errorf("expected one audio asset, got %+v", assets)
	}
}

func TestProjectEventsStream(t *testing.T) {
	ts := newTestServer(t, "")
	id := ts.seed(t, models.Scene{ID: "scene-0", VisualPrompt: "a"})

	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/v1/projects/" + id.String() + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first store.Event
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if first.Type != store.EventScenesReplaced || len(first.Scenes) != 1 {
		t.Fatalf("unexpected snapshot %+v", first)
	}

	ts.store.UpdateScene(context.Background(), id, "scene-0", func(s *models.Scene) { s.Status = models.SceneStatusGenerating })

	var next store.Event
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if next.Type != store.EventSceneUpdated || next.Scene.Status != models.SceneStatusGenerating {
		t.Errorf("unexpected event %+v", next)
	}
	if next.PreviousStatus != models.SceneStatusPending {
		t.Errorf("expected previous status pending, got %s", next.PreviousStatus)
	}
}
