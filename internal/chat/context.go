package chat

import (
	"errors"
	"fmt"
	"strings"

	"earmark/internal/analysis"
	"earmark/internal/cache"
)

// ErrNoResult means there is no cached result to talk about.
var ErrNoResult = errors.New("no analysis result available")

// Roles used in Turn.
const (
	RoleUser      = "User"
	RoleAssistant = "Assistant"
)

// Turn is one message in the conversation.
type Turn struct {
	Role string
	Text string
}

// ChunkView is the part of a chunk exposed to the conversation.
type ChunkView struct {
	Index        int
	StartSeconds float64
	Label        analysis.Label
	Confidence   float64
}

// Payload is the context transmitted with a chat message.
type Payload struct {
	JobID               string
	OverallLabel        analysis.Label
	AggregateConfidence float64
	Chunks              []ChunkView
	Transcript          string
	History             []Turn
}

// BuildContext assembles the payload for entry. transcript overrides the
// transcript stored with the result when non-nil. It performs no I/O.
func BuildContext(entry *cache.Entry, transcript *analysis.Transcript, history []Turn) (Payload, error) {
	if entry == nil {
		return Payload{}, ErrNoResult
	}
	result := entry.Result
	if transcript == nil {
		transcript = result.Transcript
	}

	chunks := make([]ChunkView, 0, len(result.Chunks))
	for _, c := range result.Chunks {
		chunks = append(chunks, ChunkView{Index: c.Index, StartSeconds: c.StartSeconds, Label: c.Label, Confidence: c.Confidence})
	}
	payload := Payload{
		JobID:               entry.JobID,
		OverallLabel:        result.OverallLabel,
		AggregateConfidence: result.AggregateConfidence,
		Chunks:              chunks,
		History:             append([]Turn(nil), history...),
	}
	if transcript != nil {
		payload.Transcript = transcript.Text
	}
	return payload, nil
}

// AnalysisData is the structured form of the payload sent alongside a
// message.
func (p Payload) AnalysisData() map[string]any {
	chunks := make([]map[string]any, 0, len(p.Chunks))
	for _, c := range p.Chunks {
		chunks = append(chunks, map[string]any{
			"index":      c.Index,
			"timestamp":  c.StartSeconds,
			"prediction": strings.ToLower(string(c.Label)),
			"confidence": c.Confidence,
		})
	}
	data := map[string]any{
		"fileName":            p.JobID,
		"overallPrediction":   string(p.OverallLabel),
		"aggregateConfidence": p.AggregateConfidence,
		"chunkResults":        chunks,
	}
	if p.Transcript != "" {
		data["transcriptionData"] = map[string]any{"text": p.Transcript}
	}
	return data
}

// HistoryText renders the conversation so far, one "Role: text" line per turn.
func (p Payload) HistoryText() string {
	var b strings.Builder
	for i, turn := range p.History {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(turn.Role)
		b.WriteString(": ")
		b.WriteString(turn.Text)
	}
	return b.String()
}

// Render produces the human-readable analysis block.
func (p Payload) Render() string {
	var b strings.Builder
	b.WriteString("AUDIO ANALYSIS RESULTS:\n")
	fmt.Fprintf(&b, "File: %s\n", p.JobID)
	fmt.Fprintf(&b, "Overall Prediction: %s\n", p.OverallLabel)
	fmt.Fprintf(&b, "Aggregate Confidence: %.2f\n", p.AggregateConfidence)
	fmt.Fprintf(&b, "Total Chunks: %d\n", len(p.Chunks))
	if len(p.Chunks) > 0 {
		b.WriteString("Detailed Results:\n")
		for _, c := range p.Chunks {
			fmt.Fprintf(&b, "- Chunk %d at %gs: %s (confidence: %.2f)\n", c.Index, c.StartSeconds, c.Label, c.Confidence)
		}
	}
	if p.Transcript != "" {
		b.WriteString("\nTRANSCRIPTION:\n")
		b.WriteString(p.Transcript)
		b.WriteByte('\n')
	}
	return b.String()
}
