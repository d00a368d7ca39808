package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ivlev/nlecore/internal/compositor"
	"github.com/ivlev/nlecore/internal/store"
	"github.com/ivlev/nlecore/internal/timeline"
)

type fakeRaster struct {
	released int
}

func (f *fakeRaster) Render(ctx context.Context, frame compositor.Frame) (*image.RGBA, error) {
	return image.NewRGBA(image.Rect(0, 0, 4, 2)), nil
}

func (f *fakeRaster) Release(*image.RGBA) { f.released++ }

// startSession runs a session loop for the duration of the test. The tick
// interval is long enough that playback never advances on its own.
func startSession(t *testing.T) *Session {
	t.Helper()
	sess := NewSession(SessionOptions{Name: "demo", TickInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sess.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	deadline := time.Now().Add(2 * time.Second)
	for !sess.Running() {
		if time.Now().After(deadline) {
			t.Fatal("session loop did not start")
		}
		time.Sleep(time.Millisecond)
	}
	return sess
}

func testRouter(t *testing.T, mutate func(*ServerConfig)) (chi.Router, *Session) {
	t.Helper()
	sess := startSession(t)
	cfg := ServerConfig{Session: sess, StartTime: time.Now(), Version: "test"}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewRouter(cfg), sess
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeInto[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status code = %d, want %d (body %s)", rr.Code, want, rr.Body.String())
	}
}

func addVideoClip(t *testing.T, h http.Handler, start, duration int64) timeline.Clip {
	t.Helper()
	rr := do(t, h, http.MethodPost, "/tracks/V1/clips", timeline.ClipSpec{
		MediaKind: timeline.MediaVideo, MediaRef: "clip.mp4", StartTime: start, Duration: duration,
	})
	expectStatus(t, rr, http.StatusCreated)
	return decodeInto[timeline.Clip](t, rr)
}

func TestHealthHandler(t *testing.T) {
	h, _ := testRouter(t, nil)
	rr := do(t, h, http.MethodGet, "/health", nil)
	expectStatus(t, rr, http.StatusOK)
	body := decodeInto[HealthResponse](t, rr)
	if body.Status != "ok" || body.Project != "demo" || body.Version != "test" {
		t.Errorf("health = %+v", body)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestSplitThenSampleFrame(t *testing.T) {
	h, _ := testRouter(t, nil)
	clip := addVideoClip(t, h, 0, 3000)

	rr := do(t, h, http.MethodPost, "/clips/"+clip.ID+"/split", SplitClipRequest{At: 1000})
	expectStatus(t, rr, http.StatusOK)
	split := decodeInto[SplitClipResponse](t, rr)
	if split.Left.Duration != 1000 || split.Right.StartTime != 1000 || split.Right.Duration != 2000 {
		t.Fatalf("split = %+v", split)
	}

	rr = do(t, h, http.MethodGet, "/frame?t=1500", nil)
	expectStatus(t, rr, http.StatusOK)
	frame := decodeInto[compositor.Frame](t, rr)
	if len(frame.Instructions) != 1 {
		t.Fatalf("instructions = %+v", frame.Instructions)
	}
	if in := frame.Instructions[0]; in.ClipID != split.Right.ID || in.MediaOffset != split.Right.TrimStart+500 {
		t.Errorf("instruction = %+v", in)
	}

	rr = do(t, h, http.MethodGet, "/clips?t=500", nil)
	expectStatus(t, rr, http.StatusOK)
	if got := decodeInto[ClipsResponse](t, rr); len(got.Clips) != 1 || got.Clips[0].ID != split.Left.ID {
		t.Errorf("clips at 500 = %+v", got)
	}
}

func TestEditErrorMapping(t *testing.T) {
	h, _ := testRouter(t, nil)
	clip := addVideoClip(t, h, 0, 1000)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"split outside clip", http.MethodPost, "/clips/" + clip.ID + "/split", SplitClipRequest{At: 1000}, http.StatusUnprocessableEntity, "INVALID_RANGE"},
		{"trim inverted", http.MethodPost, "/clips/" + clip.ID + "/trim", TrimClipRequest{TrimStart: 500, TrimEnd: 100}, http.StatusUnprocessableEntity, "INVALID_RANGE"},
		{"unknown clip", http.MethodGet, "/clips/nope", nil, http.StatusNotFound, "NOT_FOUND"},
		{"unknown track", http.MethodPost, "/tracks/V9/clips", timeline.ClipSpec{MediaKind: timeline.MediaVideo, Duration: 10}, http.StatusNotFound, "NOT_FOUND"},
		{"overlap", http.MethodPost, "/tracks/V1/clips", timeline.ClipSpec{MediaKind: timeline.MediaVideo, StartTime: 500, Duration: 1000}, http.StatusUnprocessableEntity, "OVERLAP"},
		{"incompatible", http.MethodPost, "/tracks/S1/clips", timeline.ClipSpec{MediaKind: timeline.MediaVideo, Duration: 10}, http.StatusUnprocessableEntity, "INCOMPATIBLE"},
		{"duplicate track", http.MethodPost, "/tracks", AddTrackRequest{ID: "V1", Kind: timeline.TrackVideo}, http.StatusConflict, "DUPLICATE_ID"},
		{"malformed body", http.MethodPost, "/clips/" + clip.ID + "/move", "{", http.StatusBadRequest, "BAD_REQUEST"},
		{"unknown field", http.MethodPost, "/clips/" + clip.ID + "/move", `{"track":"V1"}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"unknown effect", http.MethodPost, "/clips/" + clip.ID + "/effects", AddEffectRequest{Kind: "glitter"}, http.StatusUnprocessableEntity, "INVALID_VALUE"},
		{"bad rate", http.MethodPut, "/playback/rate", RateRequest{Rate: 3}, http.StatusUnprocessableEntity, "INVALID_PLAYBACK_RATE"},
		{"bad frame time", http.MethodGet, "/frame?t=soon", nil, http.StatusBadRequest, "BAD_REQUEST"},
		{"keyframe without time", http.MethodDelete, "/clips/" + clip.ID + "/keyframes?property=opacity", nil, http.StatusBadRequest, "BAD_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, tt.method, tt.path, tt.body)
			expectStatus(t, rr, tt.status)
			if got := decodeInto[ErrorResponse](t, rr); got.Code != tt.code {
				t.Errorf("code = %q, want %q (%s)", got.Code, tt.code, got.Error)
			}
		})
	}

	// None of the failed edits changed the clip.
	rr := do(t, h, http.MethodGet, "/clips/"+clip.ID, nil)
	expectStatus(t, rr, http.StatusOK)
	if got := decodeInto[timeline.Clip](t, rr); got.StartTime != 0 || got.Duration != 1000 || len(got.Effects) != 0 {
		t.Errorf("clip = %+v", got)
	}
}

func TestClipEditing(t *testing.T) {
	h, _ := testRouter(t, nil)
	clip := addVideoClip(t, h, 0, 2000)
	base := "/clips/" + clip.ID

	rr := do(t, h, http.MethodPost, base+"/effects", AddEffectRequest{Kind: "blur", Params: map[string]float64{"radius": 2}})
	expectStatus(t, rr, http.StatusCreated)
	eff := decodeInto[timeline.Effect](t, rr)

	rr = do(t, h, http.MethodPatch, base+"/effects/"+eff.ID, UpdateEffectRequest{Params: map[string]float64{"radius": -5}})
	expectStatus(t, rr, http.StatusUnprocessableEntity)

	off := false
	rr = do(t, h, http.MethodPatch, base+"/effects/"+eff.ID, UpdateEffectRequest{Params: map[string]float64{"radius": 4}, Enabled: &off})
	expectStatus(t, rr, http.StatusOK)
	if got := decodeInto[timeline.Effect](t, rr); got.Params["radius"] != 4 || got.Enabled {
		t.Errorf("effect = %+v", got)
	}

	rr = do(t, h, http.MethodPost, base+"/keyframes", timeline.Keyframe{Time: 1000, Property: timeline.PropOpacity, Value: 0})
	expectStatus(t, rr, http.StatusCreated)
	rr = do(t, h, http.MethodPost, base+"/keyframes", timeline.Keyframe{Time: 0, Property: timeline.PropOpacity, Value: 1})
	expectStatus(t, rr, http.StatusCreated)

	rr = do(t, h, http.MethodPut, base+"/transitions/in", timeline.Transition{Kind: timeline.TransitionFade, Duration: 200})
	expectStatus(t, rr, http.StatusOK)
	rr = do(t, h, http.MethodPut, base+"/properties/transform.x", PropertyRequest{Value: 12})
	expectStatus(t, rr, http.StatusOK)

	rr = do(t, h, http.MethodGet, base, nil)
	got := decodeInto[timeline.Clip](t, rr)
	if len(got.Keyframes) != 2 || got.Keyframes[0].Time != 0 || got.In == nil || got.Transform.X != 12 {
		t.Errorf("clip = %+v", got)
	}

	rr = do(t, h, http.MethodDelete, base+"/keyframes?property=opacity&time=1000", nil)
	expectStatus(t, rr, http.StatusNoContent)
	rr = do(t, h, http.MethodDelete, base+"/effects/"+eff.ID, nil)
	expectStatus(t, rr, http.StatusNoContent)
	rr = do(t, h, http.MethodDelete, base+"/transitions/in", nil)
	expectStatus(t, rr, http.StatusNoContent)

	rr = do(t, h, http.MethodPost, base+"/move", MoveClipRequest{StartTime: 500})
	expectStatus(t, rr, http.StatusOK)
	if got := decodeInto[timeline.Clip](t, rr); got.StartTime != 500 || got.TrackID != "V1" {
		t.Errorf("moved clip = %+v", got)
	}

	rr = do(t, h, http.MethodPatch, "/tracks/V1", UpdateTrackRequest{Locked: ptr(true)})
	expectStatus(t, rr, http.StatusOK)
	rr = do(t, h, http.MethodDelete, base, nil)
	expectStatus(t, rr, http.StatusUnprocessableEntity)
	if code := decodeInto[ErrorResponse](t, rr).Code; code != "TRACK_LOCKED" {
		t.Errorf("code = %q", code)
	}
}

func TestSelection(t *testing.T) {
	h, _ := testRouter(t, nil)
	a := addVideoClip(t, h, 0, 1000)
	b := addVideoClip(t, h, 1000, 1000)

	rr := do(t, h, http.MethodPost, "/selection", SelectionRequest{IDs: []string{b.ID, "ghost"}})
	expectStatus(t, rr, http.StatusNotFound)

	rr = do(t, h, http.MethodPost, "/selection", SelectionRequest{IDs: []string{b.ID, a.ID}})
	expectStatus(t, rr, http.StatusOK)
	if got := decodeInto[SelectionResponse](t, rr).IDs; len(got) != 2 || got[0] != a.ID {
		t.Errorf("selection = %v, want timeline order", got)
	}

	rr = do(t, h, http.MethodPost, "/selection", SelectionRequest{IDs: []string{b.ID}, Replace: true})
	expectStatus(t, rr, http.StatusOK)
	rr = do(t, h, http.MethodPost, "/selection/delete", nil)
	expectStatus(t, rr, http.StatusOK)
	if got := decodeInto[DeleteSelectedResponse](t, rr); got.Deleted != 1 {
		t.Errorf("deleted = %d", got.Deleted)
	}

	rr = do(t, h, http.MethodPost, "/compact", nil)
	expectStatus(t, rr, http.StatusOK)
	if got := decodeInto[CompactResponse](t, rr); got.Duration != 1000 {
		t.Errorf("compacted duration = %d, want 1000", got.Duration)
	}
}

func TestPlaybackControl(t *testing.T) {
	h, _ := testRouter(t, nil)
	addVideoClip(t, h, 0, 4000)

	rr := do(t, h, http.MethodPost, "/playback/seek", SeekRequest{Time: 99_999})
	expectStatus(t, rr, http.StatusOK)
	if got := decodeInto[PlaybackResponse](t, rr); got.Time != 4000 {
		t.Errorf("seek beyond end = %d, want 4000", got.Time)
	}
	rr = do(t, h, http.MethodPost, "/playback/seek", SeekRequest{Time: -10})
	if got := decodeInto[PlaybackResponse](t, rr); got.Time != 0 {
		t.Errorf("seek before start = %d, want 0", got.Time)
	}

	rr = do(t, h, http.MethodPut, "/playback/rate", RateRequest{Rate: 1.5})
	expectStatus(t, rr, http.StatusOK)
	rr = do(t, h, http.MethodPut, "/playback/loop", LoopRequest{Loop: true})
	expectStatus(t, rr, http.StatusOK)

	rr = do(t, h, http.MethodPost, "/playback/play", nil)
	expectStatus(t, rr, http.StatusOK)
	if got := decodeInto[PlaybackResponse](t, rr); got.State != "playing" || got.Rate != 1.5 || !got.Loop {
		t.Errorf("status = %+v", got)
	}
	rr = do(t, h, http.MethodPost, "/playback/pause", nil)
	if got := decodeInto[PlaybackResponse](t, rr); got.State != "paused" {
		t.Errorf("state after pause = %q", got.State)
	}
	do(t, h, http.MethodPost, "/playback/seek", SeekRequest{Time: 2500})
	rr = do(t, h, http.MethodPost, "/playback/stop", nil)
	if got := decodeInto[PlaybackResponse](t, rr); got.State != "stopped" || got.Time != 0 {
		t.Errorf("status after stop = %+v", got)
	}
}

func TestProjectRoundTrip(t *testing.T) {
	h, _ := testRouter(t, nil)
	addVideoClip(t, h, 0, 1500)

	rr := do(t, h, http.MethodGet, "/project", nil)
	expectStatus(t, rr, http.StatusOK)
	doc := rr.Body.String()
	if !strings.Contains(doc, `"tracks"`) || strings.Contains(doc, "isPlaying") {
		t.Errorf("project document = %s", doc)
	}

	rr = do(t, h, http.MethodPut, "/project", doc)
	expectStatus(t, rr, http.StatusOK)
	if got := decodeInto[PlaybackResponse](t, rr); got.Duration != 1500 {
		t.Errorf("duration after reload = %d", got.Duration)
	}

	rr = do(t, h, http.MethodGet, "/project?format=yaml", nil)
	expectStatus(t, rr, http.StatusOK)
	if ct := rr.Header().Get("Content-Type"); ct != "application/yaml" {
		t.Errorf("content type = %q", ct)
	}

	rr = do(t, h, http.MethodPut, "/project", "not json")
	expectStatus(t, rr, http.StatusBadRequest)

	overlapping := `{"tracks":[{"id":"V1","kind":"video","clips":[
		{"id":"a","mediaKind":"video","mediaRef":"x.mp4","startTime":0,"duration":1000,"trimStart":0,"trimEnd":1000,"volume":1,"opacity":1},
		{"id":"b","mediaKind":"video","mediaRef":"x.mp4","startTime":500,"duration":1000,"trimStart":0,"trimEnd":1000,"volume":1,"opacity":1}]}]}`
	rr = do(t, h, http.MethodPut, "/project", overlapping)
	expectStatus(t, rr, http.StatusUnprocessableEntity)

	rr = do(t, h, http.MethodGet, "/project", nil)
	if rr.Body.String() != doc {
		t.Error("rejected project replaced the timeline")
	}
}

func TestFramePNG(t *testing.T) {
	raster := &fakeRaster{}
	h, _ := testRouter(t, func(cfg *ServerConfig) { cfg.Renderer = raster })
	addVideoClip(t, h, 0, 1000)

	rr := do(t, h, http.MethodGet, "/frame.png?t=100", nil)
	expectStatus(t, rr, http.StatusOK)
	img, err := png.Decode(rr.Body)
	if err != nil {
		t.Fatalf("response is not a PNG: %v", err)
	}
	if img.Bounds().Dx() != 4 || raster.released != 1 {
		t.Errorf("bounds %v, released %d", img.Bounds(), raster.released)
	}

	noRender, _ := testRouter(t, nil)
	rr = do(t, noRender, http.MethodGet, "/frame.png", nil)
	expectStatus(t, rr, http.StatusNotImplemented)
}

func TestSnapshots(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "snap.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	h, _ := testRouter(t, func(cfg *ServerConfig) { cfg.Store = st })
	clip := addVideoClip(t, h, 0, 1000)

	rr := do(t, h, http.MethodPost, "/snapshots", nil)
	expectStatus(t, rr, http.StatusCreated)
	snap := decodeInto[store.Snapshot](t, rr)
	if snap.Project != "demo" || snap.Clips != 1 {
		t.Errorf("snapshot = %+v", snap)
	}

	expectStatus(t, do(t, h, http.MethodDelete, "/clips/"+clip.ID, nil), http.StatusNoContent)
	expectStatus(t, do(t, h, http.MethodGet, "/clips/"+clip.ID, nil), http.StatusNotFound)

	rr = do(t, h, http.MethodPost, "/snapshots/"+snap.ID+"/restore", nil)
	expectStatus(t, rr, http.StatusOK)
	expectStatus(t, do(t, h, http.MethodGet, "/clips/"+clip.ID, nil), http.StatusOK)

	rr = do(t, h, http.MethodGet, "/snapshots", nil)
	expectStatus(t, rr, http.StatusOK)
	if list := decodeInto[[]store.Snapshot](t, rr); len(list) != 1 || list[0].ID != snap.ID {
		t.Errorf("list = %+v", list)
	}

	expectStatus(t, do(t, h, http.MethodPost, "/snapshots/missing/restore", nil), http.StatusNotFound)
}

func TestStoppedSession(t *testing.T) {
	sess := NewSession(SessionOptions{})
	h := NewRouter(ServerConfig{Session: sess})
	rr := do(t, h, http.MethodGet, "/project", nil)
	expectStatus(t, rr, http.StatusServiceUnavailable)

	rr = do(t, h, http.MethodGet, "/health", nil)
	if got := decodeInto[HealthResponse](t, rr); got.Status != "stopped" || got.Project != "untitled" {
		t.Errorf("health = %+v", got)
	}
}

func ptr[T any](v T) *T { return &v }
