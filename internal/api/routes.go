package api

import (
	"context"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ivlev/nlecore/internal/compositor"
	"github.com/ivlev/nlecore/internal/effects"
	"github.com/ivlev/nlecore/internal/playback"
	"github.com/ivlev/nlecore/internal/project"
	"github.com/ivlev/nlecore/internal/timeline"
)

const maxProjectBytes = 32 << 20

func NewRouter(cfg ServerConfig) *chi.Mux {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))
	r.Get("/effects", effectKindsHandler())

	r.Get("/project", getProjectHandler(cfg))
	r.Put("/project", putProjectHandler(cfg))
	r.Post("/compact", compactHandler(cfg))

	r.Post("/tracks", addTrackHandler(cfg))
	r.Patch("/tracks/{trackID}", updateTrackHandler(cfg))
	r.Delete("/tracks/{trackID}", removeTrackHandler(cfg))
	r.Post("/tracks/{trackID}/clips", addClipHandler(cfg))

	r.Get("/clips", clipsAtHandler(cfg))
	r.Route("/clips/{clipID}", func(r chi.Router) {
		r.Get("/", getClipHandler(cfg))
		r.Delete("/", deleteClipHandler(cfg))
		r.Post("/move", moveClipHandler(cfg))
		r.Post("/trim", trimClipHandler(cfg))
		r.Post("/split", splitClipHandler(cfg))
		r.Post("/merge", mergeClipHandler(cfg))
		r.Put("/properties/{property}", setPropertyHandler(cfg))
		r.Post("/effects", addEffectHandler(cfg))
		r.Patch("/effects/{effectID}", updateEffectHandler(cfg))
		r.Delete("/effects/{effectID}", removeEffectHandler(cfg))
		r.Put("/transitions/{edge}", setTransitionHandler(cfg))
		r.Delete("/transitions/{edge}", removeTransitionHandler(cfg))
		r.Post("/keyframes", addKeyframeHandler(cfg))
		r.Delete("/keyframes", removeKeyframeHandler(cfg))
	})

	r.Get("/selection", getSelectionHandler(cfg))
	r.Post("/selection", selectHandler(cfg))
	r.Delete("/selection", clearSelectionHandler(cfg))
	r.Post("/selection/delete", deleteSelectedHandler(cfg))

	r.Get("/frame", frameHandler(cfg))
	r.Get("/frame.png", framePNGHandler(cfg))

	r.Get("/playback", playbackStatusHandler(cfg))
	r.Post("/playback/play", playbackActionHandler(cfg, (*playback.Controller).Play))
	r.Post("/playback/pause", playbackActionHandler(cfg, (*playback.Controller).Pause))
	r.Post("/playback/stop", playbackActionHandler(cfg, (*playback.Controller).Stop))
	r.Post("/playback/seek", seekHandler(cfg))
	r.Put("/playback/rate", rateHandler(cfg))
	r.Put("/playback/loop", loopHandler(cfg))

	if cfg.Store != nil {
		r.Get("/snapshots", listSnapshotsHandler(cfg))
		r.Post("/snapshots", saveSnapshotHandler(cfg))
		r.Post("/snapshots/{snapshotID}/restore", restoreSnapshotHandler(cfg))
	}

	return r
}

// edit runs fn on the session loop and answers with status and the value
// fn returns, or with the mapped error.
func edit[T any](cfg ServerConfig, w http.ResponseWriter, r *http.Request, status int, fn func(ed *timeline.Editor, p *playback.Controller) (T, error)) {
	var out T
	err := cfg.Session.Do(r.Context(), func(ed *timeline.Editor, p *playback.Controller) error {
		var err error
		out, err = fn(ed, p)
		return err
	})
	if err != nil {
		writeEditError(w, err)
		return
	}
	WriteJSON(w, status, out)
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		if !cfg.Session.Running() {
			status = "stopped"
		}
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  status,
			Version: cfg.Version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
			Project: cfg.Session.Name(),
		})
	}
}

func effectKindsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defs := make([]effects.Definition, 0)
		for _, kind := range effects.Kinds() {
			def, _ := effects.Lookup(kind)
			defs = append(defs, def)
		}
		WriteJSON(w, http.StatusOK, defs)
	}
}

func snapshotState(ctx context.Context, s *Session) (timeline.State, error) {
	var state timeline.State
	err := s.Do(ctx, func(ed *timeline.Editor, _ *playback.Controller) error {
		state = ed.Snapshot()
		return nil
	})
	return state, err
}

func getProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := snapshotState(r.Context(), cfg.Session)
		if err != nil {
			writeEditError(w, err)
			return
		}
		format, contentType := project.FormatJSON, "application/json"
		if r.URL.Query().Get("format") == "yaml" {
			format, contentType = project.FormatYAML, "application/yaml"
		}
		data, err := project.Marshal(&state, format)
		if err != nil {
			writeEditError(w, err)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

// putProjectHandler replaces the whole timeline. Playback is paused first
// so the controller does not advance a state it no longer owns.
func putProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxProjectBytes))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "failed to read body: "+err.Error(), "BAD_REQUEST")
			return
		}
		format := project.FormatJSON
		if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
			format = project.FormatYAML
		}
		state, err := project.Unmarshal(data, format)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		edit(cfg, w, r, http.StatusOK, func(ed *timeline.Editor, p *playback.Controller) (PlaybackResponse, error) {
			p.Pause()
			if err := ed.Load(state); err != nil {
				return PlaybackResponse{}, err
			}
			return playbackStatus(ed, p), nil
		})
	}
}

func compactHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		edit(cfg, w, r, http.StatusOK, func(ed *timeline.Editor, _ *playback.Controller) (CompactResponse, error) {
			return CompactResponse{Duration: ed.Compact()}, nil
		})
	}
}

func addTrackHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddTrackRequest
		if !decodeBody(w, r, &req) {
			return
		}
		edit(cfg, w, r, http.StatusCreated, func(ed *timeline.Editor, _ *playback.Controller) (timeline.Track, error) {
			return ed.AddTrack(req.Kind, req.ID, req.Name)
		})
	}
}

func updateTrackHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "trackID")
		var req UpdateTrackRequest
		if !decodeBody(w, r, &req) {
			return
		}
		edit(cfg, w, r, http.StatusOK, func(ed *timeline.Editor, _ *playback.Controller) (timeline.Track, error) {
			if _, err := ed.Track(id); err != nil {
				return timeline.Track{}, err
			}
			if req.Locked != nil {
				ed.SetTrackLocked(id, *req.Locked)
			}
			if req.Muted != nil {
				ed.SetTrackMuted(id, *req.Muted)
			}
			if req.Solo != nil {
				ed.SetTrackSolo(id, *req.Solo)
			}
			return ed.Track(id)
		})
	}
}

func removeTrackHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "trackID")
		force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
		err := cfg.Session.Do(r.Context(), func(ed *timeline.Editor, _ *playback.Controller) error {
			return ed.RemoveTrack(id, force)
		})
		if err != nil {
			writeEditError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func getSelectionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		edit(cfg, w, r, http.StatusOK, func(ed *timeline.Editor, _ *playback.Controller) (SelectionResponse, error) {
			return SelectionResponse{IDs: nonNil(ed.Selected())}, nil
		})
	}
}

func selectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SelectionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		edit(cfg, w, r, http.StatusOK, func(ed *timeline.Editor, _ *playback.Controller) (SelectionResponse, error) {
			for _, id := range req.IDs {
				if _, err := ed.Clip(id); err != nil {
					return SelectionResponse{}, err
				}
			}
			if req.Replace {
				ed.ClearSelection()
			}
			if err := ed.Select(req.IDs...); err != nil {
				return SelectionResponse{}, err
			}
			return SelectionResponse{IDs: nonNil(ed.Selected())}, nil
		})
	}
}

func clearSelectionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		edit(cfg, w, r, http.StatusOK, func(ed *timeline.Editor, _ *playback.Controller) (SelectionResponse, error) {
			ed.ClearSelection()
			return SelectionResponse{IDs: []string{}}, nil
		})
	}
}

func deleteSelectedHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		edit(cfg, w, r, http.StatusOK, func(ed *timeline.Editor, _ *playback.Controller) (DeleteSelectedResponse, error) {
			n, err := ed.DeleteSelected()
			return DeleteSelectedResponse{Deleted: n}, err
		})
	}
}

// queryTime parses the t query parameter. Missing means the playhead.
func queryTime(r *http.Request) (t int64, set bool, err error) {
	v := r.URL.Query().Get("t")
	if v == "" {
		return 0, false, nil
	}
	t, err = strconv.ParseInt(v, 10, 64)
	return t, err == nil, err
}

func sampleFrame(r *http.Request, s *Session) (compositor.Frame, error) {
	t, set, err := queryTime(r)
	if err != nil {
		return compositor.Frame{}, err
	}
	var frame compositor.Frame
	err = s.Do(r.Context(), func(ed *timeline.Editor, _ *playback.Controller) error {
		if !set {
			t = ed.State().CurrentTime
		}
		frame = compositor.Sample(ed.State(), t)
		return nil
	})
	return frame, err
}

func frameHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := queryTime(r); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid time: "+err.Error(), "BAD_REQUEST")
			return
		}
		frame, err := sampleFrame(r, cfg.Session)
		if err != nil {
			writeEditError(w, err)
			return
		}
		if frame.Instructions == nil {
			frame.Instructions = []compositor.Instruction{}
		}
		WriteJSON(w, http.StatusOK, frame)
	}
}

// framePNGHandler samples on the session loop and rasterizes on the request
// goroutine, so a slow decode never stalls playback.
func framePNGHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Renderer == nil {
			WriteError(w, http.StatusNotImplemented, "no renderer configured", "NO_RENDERER")
			return
		}
		if _, _, err := queryTime(r); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid time: "+err.Error(), "BAD_REQUEST")
			return
		}
		frame, err := sampleFrame(r, cfg.Session)
		if err != nil {
			writeEditError(w, err)
			return
		}
		img, err := cfg.Renderer.Render(r.Context(), frame)
		if err != nil {
			cfg.Logger.Warn("preview render failed", "time", frame.Time, "error", err)
			WriteError(w, http.StatusBadGateway, err.Error(), "RENDER_FAILED")
			return
		}
		defer cfg.Renderer.Release(img)
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		if err := png.Encode(w, img); err != nil {
			cfg.Logger.Warn("preview encode failed", "time", frame.Time, "error", err)
		}
	}
}

func playbackStatus(ed *timeline.Editor, p *playback.Controller) PlaybackResponse {
	s := ed.State()
	return PlaybackResponse{
		State:    p.State().String(),
		Time:     s.CurrentTime,
		Duration: s.Duration,
		Rate:     s.PlaybackRate,
		Loop:     p.Loop(),
	}
}

func playbackStatusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		edit(cfg, w, r, http.StatusOK, func(ed *timeline.Editor, p *playback.Controller) (PlaybackResponse, error) {
			return playbackStatus(ed, p), nil
		})
	}
}

func playbackActionHandler(cfg ServerConfig, action func(*playback.Controller)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		edit(cfg, w, r, http.StatusOK, func(ed *timeline.Editor, p *playback.Controller) (PlaybackResponse, error) {
			action(p)
			return playbackStatus(ed, p), nil
		})
	}
}

func seekHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SeekRequest
		if !decodeBody(w, r, &req) {
			return
		}
		edit(cfg, w, r, http.StatusOK, func(ed *timeline.Editor, p *playback.Controller) (PlaybackResponse, error) {
			p.Seek(req.Time)
			return playbackStatus(ed, p), nil
		})
	}
}

func rateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		edit(cfg, w, r, http.StatusOK, func(ed *timeline.Editor, p *playback.Controller) (PlaybackResponse, error) {
			if err := p.SetRate(req.Rate); err != nil {
				return PlaybackResponse{}, err
			}
			return playbackStatus(ed, p), nil
		})
	}
}

func loopHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoopRequest
		if !decodeBody(w, r, &req) {
			return
		}
		edit(cfg, w, r, http.StatusOK, func(ed *timeline.Editor, p *playback.Controller) (PlaybackResponse, error) {
			p.SetLoop(req.Loop)
			return playbackStatus(ed, p), nil
		})
	}
}

func listSnapshotsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("project")
		if name == "" {
			name = cfg.Session.Name()
		}
		list, err := cfg.Store.List(r.Context(), name)
		if err != nil {
			writeEditError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, nonNil(list))
	}
}

func saveSnapshotHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := snapshotState(r.Context(), cfg.Session)
		if err != nil {
			writeEditError(w, err)
			return
		}
		snap, err := cfg.Store.Save(r.Context(), cfg.Session.Name(), &state)
		if err != nil {
			writeEditError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, snap)
	}
}

func restoreSnapshotHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, state, err := cfg.Store.Get(r.Context(), chi.URLParam(r, "snapshotID"))
		if err != nil {
			writeEditError(w, err)
			return
		}
		edit(cfg, w, r, http.StatusOK, func(ed *timeline.Editor, p *playback.Controller) (PlaybackResponse, error) {
			p.Pause()
			if err := ed.Load(state); err != nil {
				return PlaybackResponse{}, err
			}
			return playbackStatus(ed, p), nil
		})
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
