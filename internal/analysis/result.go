package analysis

import (
	"math"
	"strings"
)

// ChunkSeconds is the fixed width of one analysed clip.
const ChunkSeconds = 3.0

// Label is a verdict for the whole file or a single chunk.
type Label string

const (
	LabelAI        Label = "AI"
	LabelHuman     Label = "HUMAN"
	LabelMixed     Label = "MIXED"
	LabelUncertain Label = "UNCERTAIN"
)

// ParseLabel maps remote verdict strings onto Label. Unknown values become
// LabelUncertain.
func ParseLabel(value string) Label {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "-", " ")
	switch {
	case normalized == "AI" || strings.HasPrefix(normalized, "AI "):
		return LabelAI
	case normalized == "HUMAN" || strings.HasPrefix(normalized, "HUMAN "):
		return LabelHuman
	case normalized == "MIXED":
		return LabelMixed
	default:
		return LabelUncertain
	}
}

// NormalizeConfidence maps a remote confidence onto [0,1]. Values above one
// are treated as percentages.
func NormalizeConfidence(value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	if value > 1 {
		value /= 100
	}
	return math.Max(0, math.Min(1, value))
}

// Chunk is the verdict for one fixed-width clip.
type Chunk struct {
	Index        int     `json:"index"`
	StartSeconds float64 `json:"start_seconds"`
	Label        Label   `json:"label"`
	Confidence   float64 `json:"confidence"`
}

// Word is a timed transcript token.
type Word struct {
	Text         string  `json:"text"`
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
}

// Transcript is the speech-to-text output attached to paid results.
type Transcript struct {
	Text      string `json:"text"`
	Words     []Word `json:"words,omitempty"`
	Summary   string `json:"summary,omitempty"`
	Sentiment string `json:"sentiment,omitempty"`
}

// Summary carries clip counts reported alongside the timeline.
type Summary struct {
	TotalClips   int     `json:"total_clips"`
	AIClips      int     `json:"ai_clips"`
	HumanClips   int     `json:"human_clips"`
	PercentAI    float64 `json:"percent_ai"`
	PercentHuman float64 `json:"percent_human"`
}

// Result is a decoded analysis outcome. Treat it as immutable once built.
type Result struct {
	JobID               string      `json:"job_id"`
	OverallLabel        Label       `json:"overall_label"`
	AggregateConfidence float64     `json:"aggregate_confidence"`
	Chunks              []Chunk     `json:"chunks"`
	Transcript          *Transcript `json:"transcript,omitempty"`
	Summary             *Summary    `json:"summary,omitempty"`
}

// Clone returns a deep copy so derived views never alias the cached value.
func (r Result) Clone() Result {
	out := r
	if r.Chunks != nil {
		out.Chunks = append([]Chunk(nil), r.Chunks...)
	}
	if r.Transcript != nil {
		t := *r.Transcript
		if r.Transcript.Words != nil {
			t.Words = append([]Word(nil), r.Transcript.Words...)
		}
		out.Transcript = &t
	}
	if r.Summary != nil {
		s := *r.Summary
		out.Summary = &s
	}
	return out
}

// SummarizeChunks derives clip counts from the chunk sequence when the remote
// side did not report them.
func SummarizeChunks(chunks []Chunk) Summary {
	summary := Summary{TotalClips: len(chunks)}
	for _, chunk := range chunks {
		switch chunk.Label {
		case LabelAI:
			summary.AIClips++
		case LabelHuman:
			summary.HumanClips++
		}
	}
	if summary.TotalClips > 0 {
		summary.PercentAI = roundPercent(float64(summary.AIClips) / float64(summary.TotalClips))
		summary.PercentHuman = roundPercent(float64(summary.HumanClips) / float64(summary.TotalClips))
	}
	return summary
}

func roundPercent(ratio float64) float64 {
	return math.Round(ratio*1000) / 10
}
