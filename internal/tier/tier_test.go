package tier_test

import (
	"reflect"
	"testing"

	"earmark/internal/analysis"
	"earmark/internal/testsupport"
	"earmark/internal/tier"
)

func TestShapeFreeStripsTranscript(t *testing.T) {
	result := testsupport.SampleResult("job")

	d := tier.Shape(result, analysis.TierFree)
	if !d.IsLimited {
		t.Fatal("free deliverable must be limited")
	}
	if d.Result.Transcript != nil {
		t.Fatalf("transcript leaked to free tier: %#v", d.Result.Transcript)
	}
	if d.Result.OverallLabel != result.OverallLabel || d.Result.AggregateConfidence != result.AggregateConfidence {
		t.Fatalf("verdict changed: %#v", d.Result)
	}
	if !reflect.DeepEqual(d.Result.Chunks, result.Chunks) || !reflect.DeepEqual(d.Result.Summary, result.Summary) {
		t.Fatal("free tier must keep chunks and summary")
	}
	if result.Transcript == nil {
		t.Fatal("input result was modified")
	}
}

func TestShapeProPassesThrough(t *testing.T) {
	result := testsupport.SampleResult("job")

	d := tier.Shape(result, analysis.TierPro)
	if d.IsLimited || len(d.Withheld) != 0 {
		t.Fatalf("pro deliverable limited: %#v", d)
	}
	if !reflect.DeepEqual(d.Result, result) {
		t.Fatalf("pro result differs:\n got %#v\nwant %#v", d.Result, result)
	}

	d.Result.Chunks[0].Label = analysis.LabelAI
	if result.Chunks[0].Label == analysis.LabelAI {
		t.Fatal("deliverable aliases cached chunks")
	}
}

func TestShapeIsDeterministic(t *testing.T) {
	result := testsupport.SampleResult("job")
	for _, tr := range []analysis.Tier{analysis.TierFree, analysis.TierPro} {
		a := tier.Shape(result, tr)
		b := tier.Shape(result, tr)
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("%s: shape not deterministic", tr)
		}
	}
}
