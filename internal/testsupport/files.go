package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"earmark/internal/analysis"
)

// MP3Bytes returns size bytes that sniff as an ID3-tagged MP3. A size below
// the header length is raised to fit it.
func MP3Bytes(size int) []byte {
	header := []byte{'I', 'D', '3', 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	if size < len(header) {
		size = len(header)
	}
	data := make([]byte, size)
	copy(data, header)
	for i := len(header); i < size; i++ {
		data[i] = 0x42
	}
	return data
}

// WriteAudioFile writes an MP3-shaped file of the requested size under dir.
func WriteAudioFile(t testing.TB, dir, name string, size int) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, MP3Bytes(size), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// SampleResult builds a small completed result for jobID.
func SampleResult(jobID string) analysis.Result {
	chunks := []analysis.Chunk{
		{Index: 0, StartSeconds: 0, Label: analysis.LabelHuman, Confidence: 0.91},
		{Index: 1, StartSeconds: 3, Label: analysis.LabelAI, Confidence: 0.77},
		{Index: 2, StartSeconds: 6, Label: analysis.LabelHuman, Confidence: 0.88},
	}
	summary := analysis.SummarizeChunks(chunks)
	return analysis.Result{
		JobID:               jobID,
		OverallLabel:        analysis.LabelMixed,
		AggregateConfidence: 0.85,
		Chunks:              chunks,
		Transcript: &analysis.Transcript{
			Text:    "hello there general",
			Summary: "a greeting",
		},
		Summary: &summary,
	}
}
