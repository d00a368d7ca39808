package api

import (
	"github.com/ivlev/nlecore/internal/timeline"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
	Project string `json:"project"`
}

type AddTrackRequest struct {
	ID   string             `json:"id"`
	Kind timeline.TrackKind `json:"kind"`
	Name string             `json:"name"`
}

type UpdateTrackRequest struct {
	Locked *bool `json:"locked"`
	Muted  *bool `json:"muted"`
	Solo   *bool `json:"solo"`
}

type MoveClipRequest struct {
	TrackID   string `json:"trackId"`
	StartTime int64  `json:"startTime"`
}

type TrimClipRequest struct {
	TrimStart int64 `json:"trimStart"`
	TrimEnd   int64 `json:"trimEnd"`
}

type SplitClipRequest struct {
	At int64 `json:"at"`
}

type SplitClipResponse struct {
	Left  timeline.Clip `json:"left"`
	Right timeline.Clip `json:"right"`
}

type MergeClipRequest struct {
	RightID string `json:"rightId"`
}

type PropertyRequest struct {
	Value float64 `json:"value"`
}

type AddEffectRequest struct {
	Kind   string             `json:"kind"`
	Params map[string]float64 `json:"params"`
}

type UpdateEffectRequest struct {
	Params  map[string]float64 `json:"params"`
	Enabled *bool              `json:"enabled"`
}

type SelectionRequest struct {
	IDs     []string `json:"ids"`
	Replace bool     `json:"replace"`
}

type SelectionResponse struct {
	IDs []string `json:"ids"`
}

type DeleteSelectedResponse struct {
	Deleted int `json:"deleted"`
}

type CompactResponse struct {
	Duration int64 `json:"duration"`
}

type ClipsResponse struct {
	Time  int64           `json:"time"`
	Clips []timeline.Clip `json:"clips"`
}

type PlaybackResponse struct {
	State    string  `json:"state"`
	Time     int64   `json:"time"`
	Duration int64   `json:"duration"`
	Rate     float64 `json:"rate"`
	Loop     bool    `json:"loop"`
}

type SeekRequest struct {
	Time int64 `json:"time"`
}

type RateRequest struct {
	Rate float64 `json:"rate"`
}

type LoopRequest struct {
	Loop bool `json:"loop"`
}
