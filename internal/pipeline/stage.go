package pipeline

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/raine/resale-pricer/internal/pricing"
)

// Stage is a step of the pricing run. Stages execute strictly in order.
type Stage int

const (
	StageExtract Stage = iota
	StageFetchComps
	StageStats
	StageRecommend
	StageDone
)

var stageNames = [...]string{
	StageExtract:    "extract",
	StageFetchComps: "fetch_comps",
	StageStats:      "stats",
	StageRecommend:  "recommend",
	StageDone:       "done",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Next returns the stage that follows s. StageDone is terminal.
func (s Stage) Next() Stage {
	if s >= StageDone {
		return StageDone
	}
	return s + 1
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// State accumulates the outputs of a single run. Each stage only adds its
// own fields; nothing is overwritten.
type State struct {
	RunID string `json:"run_id"`
	Stage Stage  `json:"stage"`

	ImageURLs     []string `json:"image_urls"`
	TitleHint     string   `json:"title_hint,omitempty"`
	CategoryHints []string `json:"category_hints,omitempty"`

	Extracted      *pricing.Attributes     `json:"extracted,omitempty"`
	Query          string                  `json:"query,omitempty"`
	Comps          []pricing.Comp          `json:"comps,omitempty"`
	Stats          *pricing.Stats          `json:"stats,omitempty"`
	Recommendation *pricing.Recommendation `json:"recommendation,omitempty"`
}

func newState(req Request) *State {
	return &State{
		RunID:         uuid.NewString(),
		Stage:         StageExtract,
		ImageURLs:     append([]string(nil), req.ImageURLs...),
		TitleHint:     req.TitleHint,
		CategoryHints: append([]string(nil), req.CategoryHints...),
	}
}
