package aispy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"earmark/internal/analysis"
)

type tokenRequest struct {
	AppUserID string `json:"app_user_id"`
}

type tokenResponse struct {
	Token     string  `json:"token"`
	ExpiresIn float64 `json:"expires_in"`
}

type uploadURLRequest struct {
	FileName string `json:"file_name"`
	FileType string `json:"file_type"`
}

type uploadURLResponse struct {
	SignedURL string `json:"signed_url"`
	FileName  string `json:"file_name"`
	Bucket    string `json:"bucket"`
}

type reportRequest struct {
	BucketName string `json:"bucket_name"`
	FileName   string `json:"file_name"`
}

type linkRequest struct {
	URL string `json:"url"`
}

type taskResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// statusResponse is the /report-status payload. result is a mixed array: one
// summary_statistics object followed by timeline items.
type statusResponse struct {
	Status              string             `json:"status"`
	Result              []json.RawMessage  `json:"result"`
	Results             []json.RawMessage  `json:"results"`
	OverallPrediction   string             `json:"overall_prediction"`
	AggregateConfidence *float64           `json:"aggregate_confidence"`
	TranscriptionData   *transcriptionWire `json:"transcription_data"`
	IsLimited           bool               `json:"is_limited"`
	Error               string             `json:"error"`
	Detail              string             `json:"detail"`
	Message             string             `json:"message"`
}

type resultItem struct {
	SummaryStatistics *summaryWire `json:"summary_statistics"`
	Timestamp         *float64     `json:"timestamp"`
	Prediction        string       `json:"prediction"`
	Confidence        float64      `json:"confidence"`
}

type summaryWire struct {
	TotalClips  int `json:"total_clips"`
	SpeechClips struct {
		AIClips    clipCount `json:"ai_clips"`
		HumanClips clipCount `json:"human_clips"`
	} `json:"speech_clips"`
}

type clipCount struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type transcriptionWire struct {
	Text             string         `json:"text"`
	Transcript       string         `json:"transcript"`
	Words            []wordWire     `json:"words"`
	Summary          flexibleText   `json:"summary"`
	AverageSentiment *sentimentWire `json:"average_sentiment"`
}

type wordWire struct {
	Word           string  `json:"word"`
	PunctuatedWord string  `json:"punctuated_word"`
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
}

type sentimentWire struct {
	Sentiment string `json:"sentiment"`
}

// flexibleText accepts either a string or an object carrying short/result text.
type flexibleText string

func (f *flexibleText) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*f = flexibleText(s)
		return nil
	}
	var obj struct {
		Short  string `json:"short"`
		Result string `json:"result"`
	}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return err
	}
	if obj.Short != "" {
		*f = flexibleText(obj.Short)
	} else {
		*f = flexibleText(obj.Result)
	}
	return nil
}

type chatRequest struct {
	Message      string         `json:"message"`
	Context      string         `json:"context,omitempty"`
	AnalysisData map[string]any `json:"analysis_data,omitempty"`
}

type chatResponse struct {
	Response string `json:"response"`
	Context  string `json:"context"`
}

type chatUsageResponse struct {
	MessageCount int `json:"message_count"`
	Limit        int `json:"limit"`
	Remaining    int `json:"remaining"`
}

var errEmptyResult = errors.New("completed status carried no result items")

// decodeResult converts a completed status payload into an immutable Result.
func decodeResult(jobID string, payload statusResponse) (analysis.Result, error) {
	items := payload.Result
	if len(items) == 0 {
		items = payload.Results
	}
	if len(items) == 0 {
		return analysis.Result{}, errEmptyResult
	}

	result := analysis.Result{
		JobID:        jobID,
		OverallLabel: analysis.ParseLabel(payload.OverallPrediction),
	}
	for idx, raw := range items {
		var item resultItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return analysis.Result{}, fmt.Errorf("decode result item %d: %w", idx, err)
		}
		switch {
		case item.SummaryStatistics != nil:
			result.Summary = &analysis.Summary{
				TotalClips:   item.SummaryStatistics.TotalClips,
				AIClips:      item.SummaryStatistics.SpeechClips.AIClips.Count,
				HumanClips:   item.SummaryStatistics.SpeechClips.HumanClips.Count,
				PercentAI:    item.SummaryStatistics.SpeechClips.AIClips.Percentage,
				PercentHuman: item.SummaryStatistics.SpeechClips.HumanClips.Percentage,
			}
		case item.Timestamp != nil:
			result.Chunks = append(result.Chunks, analysis.Chunk{
				Index:        len(result.Chunks),
				StartSeconds: *item.Timestamp,
				Label:        analysis.ParseLabel(item.Prediction),
				Confidence:   analysis.NormalizeConfidence(item.Confidence),
			})
		}
	}

	if payload.AggregateConfidence != nil {
		result.AggregateConfidence = analysis.NormalizeConfidence(*payload.AggregateConfidence)
	} else {
		result.AggregateConfidence = meanConfidence(result.Chunks)
	}
	if result.Summary == nil && len(result.Chunks) > 0 {
		summary := analysis.SummarizeChunks(result.Chunks)
		result.Summary = &summary
	}
	if payload.TranscriptionData != nil {
		result.Transcript = decodeTranscript(*payload.TranscriptionData)
	}
	return result, nil
}

func decodeTranscript(wire transcriptionWire) *analysis.Transcript {
	text := strings.TrimSpace(wire.Text)
	if text == "" {
		text = strings.TrimSpace(wire.Transcript)
	}
	transcript := &analysis.Transcript{
		Text:    text,
		Summary: strings.TrimSpace(string(wire.Summary)),
	}
	if wire.AverageSentiment != nil {
		transcript.Sentiment = strings.TrimSpace(wire.AverageSentiment.Sentiment)
	}
	for _, w := range wire.Words {
		token := w.PunctuatedWord
		if token == "" {
			token = w.Word
		}
		transcript.Words = append(transcript.Words, analysis.Word{
			Text:         token,
			StartSeconds: w.Start,
			EndSeconds:   w.End,
		})
	}
	if transcript.Text == "" && len(transcript.Words) == 0 {
		return nil
	}
	return transcript
}

func meanConfidence(chunks []analysis.Chunk) float64 {
	if len(chunks) == 0 {
		return 0
	}
	var total float64
	for _, chunk := range chunks {
		total += chunk.Confidence
	}
	return total / float64(len(chunks))
}
