package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ivlev/nlecore/internal/effects"
	"github.com/ivlev/nlecore/internal/playback"
	"github.com/ivlev/nlecore/internal/timeline"
)

func addClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trackID := chi.URLParam(r, "trackID")
		var spec timeline.ClipSpec
		if !decodeBody(w, r, &spec) {
			return
		}
		edit(cfg, w, r, http.StatusCreated, func(ed *timeline.Editor, _ *playback.Controller) (timeline.Clip, error) {
			return ed.AddClip(trackID, spec)
		})
	}
}

func clipsAtHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, set, err := queryTime(r)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid time: "+err.Error(), "BAD_REQUEST")
			return
		}
		edit(cfg, w, r, http.StatusOK, func(ed *timeline.Editor, _ *playback.Controller) (ClipsResponse, error) {
			if !set {
				t = ed.State().CurrentTime
			}
			return ClipsResponse{Time: t, Clips: nonNil(ed.ClipsAt(t))}, nil
		})
	}
}

func getClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "clipID")
		edit(cfg, w, r, http.StatusOK, func(ed *timeline.Editor, _ *playback.Controller) (timeline.Clip, error) {
			return ed.Clip(id)
		})
	}
}

func deleteClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "clipID")
		err := cfg.Session.Do(r.Context(), func(ed *timeline.Editor, _ *playback.Controller) error {
			return ed.DeleteClip(id)
		})
		if err != nil {
			writeEditError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func moveClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "clipID")
		var req MoveClipRequest
		if !decodeBody(w, r, &req) {
			return
		}
		edit(cfg, w, r, http.StatusOK, func(ed *timeline.Editor, _ *playback.Controller) (timeline.Clip, error) {
			if req.TrackID == "" {
				c, err := ed.Clip(id)
				if err != nil {
					return timeline.Clip{}, err
				}
				req.TrackID = c.TrackID
			}
			return ed.MoveClip(id, req.TrackID, req.StartTime)
		})
	}
}

func trimClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "clipID")
		var req TrimClipRequest
		if !decodeBody(w, r, &req) {
			return
		}
		edit(cfg, w, r, http.StatusOK, func(ed *timeline.Editor, _ *playback.Controller) (timeline.Clip, error) {
			return ed.TrimClip(id, req.TrimStart, req.TrimEnd)
		})
	}
}

func splitClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "clipID")
		var req SplitClipRequest
		if !decodeBody(w, r, &req) {
			return
		}
		edit(cfg, w, r, http.StatusOK, func(ed *timeline.Editor, _ *playback.Controller) (SplitClipResponse, error) {
			left, right, err := ed.SplitClip(id, req.At)
			return SplitClipResponse{Left: left, Right: right}, err
		})
	}
}

func mergeClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "clipID")
		var req MergeClipRequest
		if !decodeBody(w, r, &req) {
			return
		}
		edit(cfg, w, r, http.StatusOK, func(ed *timeline.Editor, _ *playback.Controller) (timeline.Clip, error) {
			return ed.MergeClips(id, req.RightID)
		})
	}
}

func setPropertyHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "clipID")
		property := chi.URLParam(r, "property")
		var req PropertyRequest
		if !decodeBody(w, r, &req) {
			return
		}
		edit(cfg, w, r, http.StatusOK, func(ed *timeline.Editor, _ *playback.Controller) (timeline.Clip, error) {
			if err := ed.SetClipProperty(id, property, req.Value); err != nil {
				return timeline.Clip{}, err
			}
			return ed.Clip(id)
		})
	}
}

// addEffectHandler builds the effect from the catalogue so unknown kinds and
// out-of-range parameters are rejected before the clip is touched.
func addEffectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "clipID")
		var req AddEffectRequest
		if !decodeBody(w, r, &req) {
			return
		}
		eff, err := effects.New(req.Kind, req.Params)
		if err != nil {
			writeEditError(w, err)
			return
		}
		edit(cfg, w, r, http.StatusCreated, func(ed *timeline.Editor, _ *playback.Controller) (timeline.Effect, error) {
			return ed.AddEffect(id, eff)
		})
	}
}

func updateEffectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "clipID")
		effectID := chi.URLParam(r, "effectID")
		var req UpdateEffectRequest
		if !decodeBody(w, r, &req) {
			return
		}
		edit(cfg, w, r, http.StatusOK, func(ed *timeline.Editor, _ *playback.Controller) (timeline.Effect, error) {
			c, err := ed.Clip(id)
			if err != nil {
				return timeline.Effect{}, err
			}
			eff, ok := c.Effect(effectID)
			if !ok {
				return timeline.Effect{}, &timeline.NotFoundError{Kind: "effect", ID: effectID}
			}
			if len(req.Params) > 0 {
				def, err := effects.Lookup(eff.Kind)
				if err != nil {
					return timeline.Effect{}, err
				}
				for name, v := range req.Params {
					if err := def.Check(name, v); err != nil {
						return timeline.Effect{}, err
					}
				}
			}
			for name, v := range req.Params {
				if err := ed.SetEffectParam(id, effectID, name, v); err != nil {
					return timeline.Effect{}, err
				}
			}
			if req.Enabled != nil {
				if err := ed.SetEffectEnabled(id, effectID, *req.Enabled); err != nil {
					return timeline.Effect{}, err
				}
			}
			c, _ = ed.Clip(id)
			eff, _ = c.Effect(effectID)
			return *eff, nil
		})
	}
}

func removeEffectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "clipID")
		effectID := chi.URLParam(r, "effectID")
		err := cfg.Session.Do(r.Context(), func(ed *timeline.Editor, _ *playback.Controller) error {
			return ed.RemoveEffect(id, effectID)
		})
		if err != nil {
			writeEditError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func setTransitionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "clipID")
		edge := timeline.Edge(chi.URLParam(r, "edge"))
		var tr timeline.Transition
		if !decodeBody(w, r, &tr) {
			return
		}
		edit(cfg, w, r, http.StatusOK, func(ed *timeline.Editor, _ *playback.Controller) (timeline.Transition, error) {
			return ed.AddTransition(id, edge, tr)
		})
	}
}

func removeTransitionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "clipID")
		edge := timeline.Edge(chi.URLParam(r, "edge"))
		err := cfg.Session.Do(r.Context(), func(ed *timeline.Editor, _ *playback.Controller) error {
			return ed.RemoveTransition(id, edge)
		})
		if err != nil {
			writeEditError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func addKeyframeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "clipID")
		var kf timeline.Keyframe
		if !decodeBody(w, r, &kf) {
			return
		}
		edit(cfg, w, r, http.StatusCreated, func(ed *timeline.Editor, _ *playback.Controller) (timeline.Keyframe, error) {
			return ed.AddKeyframe(id, kf)
		})
	}
}

func removeKeyframeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "clipID")
		q := r.URL.Query()
		property := q.Get("property")
		at, err := strconv.ParseInt(q.Get("time"), 10, 64)
		if property == "" || err != nil {
			WriteError(w, http.StatusBadRequest, "property and time query parameters are required", "BAD_REQUEST")
			return
		}
		err = cfg.Session.Do(r.Context(), func(ed *timeline.Editor, _ *playback.Controller) error {
			return ed.RemoveKeyframe(id, property, at)
		})
		if err != nil {
			writeEditError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
