package memory

import (
	"context"
	"testing"
)

func TestTFIDFScorerRange(t *testing.T) {
	scorer := NewTFIDFScorer()
	ctx := context.Background()

	cases := []struct {
		name      string
		query     string
		candidate string
	}{
		{"identical", "dark mode preference", "dark mode preference"},
		{"partial overlap", "hiking trails", "the user enjoys hiking"},
		{"no overlap", "billing address", "favorite color is green"},
		{"empty candidate", "query", ""},
		{"chinese", "用户偏好", "用户偏好深色模式"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			score, err := scorer.Score(ctx, tc.query, tc.candidate)
			if err != nil {
				t.Fatalf("Score failed: %v", err)
			}
			if score < 0 || score > 1 {
				t.Errorf("score = %v, want in [0, 1]", score)
			}
		})
	}
}

func TestTFIDFScorerOrdering(t *testing.T) {
	scorer := NewTFIDFScorer()
	ctx := context.Background()

	exact, _ := scorer.Score(ctx, "hiking trails", "hiking trails")
	partial, _ := scorer.Score(ctx, "hiking trails", "hiking boots and gear")
	unrelated, _ := scorer.Score(ctx, "hiking trails", "quarterly revenue report")

	if exact <= partial {
		t.Errorf("exact match %v should outscore partial %v", exact, partial)
	}
	if partial <= unrelated {
		t.Errorf("partial match %v should outscore unrelated %v", partial, unrelated)
	}
	if unrelated != 0 {
		t.Errorf("unrelated score = %v, want 0", unrelated)
	}
}

func TestCosineSimilarity(t *testing.T) {
	if sim := CosineSimilarity([]float32{1, 0}, []float32{1, 0}); sim < 0.999 {
		t.Errorf("identical vectors sim = %v, want 1", sim)
	}
	if sim := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); sim != 0 {
		t.Errorf("orthogonal vectors sim = %v, want 0", sim)
	}
	if sim := CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}); sim != 0 {
		t.Errorf("mismatched lengths sim = %v, want 0", sim)
	}
}

// countingScorer counts how many times Score is invoked.
type countingScorer struct {
	calls int
}

func (s *countingScorer) Score(ctx context.Context, query, candidate string) (float64, error) {
	s.calls++
	return 0.5, nil
}

func TestCachedScorerMemoizes(t *testing.T) {
	inner := &countingScorer{}
	scorer := NewCachedScorer(inner)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := scorer.Score(ctx, "q", "c"); err != nil {
			t.Fatalf("Score failed: %v", err)
		}
	}
	if inner.calls != 1 {
		t.Errorf("inner scorer called %d times, want 1", inner.calls)
	}

	// Distinct pairs are not confused by naive concatenation.
	if _, err := scorer.Score(ctx, "qc", ""); err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("inner scorer called %d times, want 2", inner.calls)
	}
}
