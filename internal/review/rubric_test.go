package review

import "testing"

func score(v float64) *float64 { return &v }

func TestDecide_Empty(t *testing.T) {
	d := Decide(nil, 8, nil)
	if d.Decision != Approve {
		t.Errorf("Decision = %q, want approve", d.Decision)
	}
	if d.AvgScore != 0 || d.Brief != "" || d.HighIssueCount != 0 {
		t.Errorf("unexpected decision fields: %+v", d)
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name      string
		critiques []Critique
		min       float64
		prev      *float64
		want      Verdict
		wantAvg   float64
		wantHigh  int
	}{
		{
			name: "high issue forces revise despite perfect score",
			critiques: []Critique{
				{Name: "Skeptic", Score: 10, Issues: []Issue{{SeverityHigh, "no evidence"}}},
				{Name: "Editor", Score: 10},
			},
			min:      8,
			want:     Revise,
			wantAvg:  10,
			wantHigh: 1,
		},
		{
			name: "high issue beats oscillation guard",
			critiques: []Critique{
				{Name: "Skeptic", Score: 3, Issues: []Issue{{SeverityHigh, "wrong market"}}},
			},
			min:      8,
			prev:     score(9),
			want:     Revise,
			wantAvg:  3,
			wantHigh: 1,
		},
		{
			name: "above threshold approves",
			critiques: []Critique{
				{Name: "A", Score: 8},
				{Name: "B", Score: 9, Issues: []Issue{{SeverityMedium, "tighten intro"}}},
			},
			min:     8,
			want:    Approve,
			wantAvg: 8.5,
		},
		{
			name:      "exactly at threshold approves",
			critiques: []Critique{{Name: "A", Score: 8}},
			min:       8,
			want:      Approve,
			wantAvg:   8,
		},
		{
			name:      "below threshold without previous revises",
			critiques: []Critique{{Name: "A", Score: 6}, {Name: "B", Score: 7}},
			min:       8,
			want:      Revise,
			wantAvg:   6.5,
		},
		{
			name:      "oscillation guard approves when score dropped",
			critiques: []Critique{{Name: "A", Score: 5}, {Name: "B", Score: 7}},
			min:       8,
			prev:      score(7),
			want:      Approve,
			wantAvg:   6,
		},
		{
			name:      "equal to previous still revises",
			critiques: []Critique{{Name: "A", Score: 6}},
			min:       8,
			prev:      score(6),
			want:      Revise,
			wantAvg:   6,
		},
		{
			name:      "improved but below threshold revises",
			critiques: []Critique{{Name: "A", Score: 7}},
			min:       8,
			prev:      score(5),
			want:      Revise,
			wantAvg:   7,
		},
		{
			name: "low issues never matter",
			critiques: []Critique{
				{Name: "A", Score: 9, Issues: []Issue{{SeverityLow, "comma"}, {SeverityLow, "typo"}}},
			},
			min:     8,
			want:    Approve,
			wantAvg: 9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.critiques, tt.min, tt.prev)
			if d.Decision != tt.want {
				t.Errorf("Decision = %q, want %q", d.Decision, tt.want)
			}
			if d.AvgScore != tt.wantAvg {
				t.Errorf("AvgScore = %v, want %v", d.AvgScore, tt.wantAvg)
			}
			if d.HighIssueCount != tt.wantHigh {
				t.Errorf("HighIssueCount = %d, want %d", d.HighIssueCount, tt.wantHigh)
			}
		})
	}
}

func TestDecide_BriefOrdering(t *testing.T) {
	critiques := []Critique{
		{Name: "Growth", Score: 7, Issues: []Issue{
			{SeverityMedium, "CTA is vague"},
			{SeverityHigh, "pricing contradicts strategy"},
			{SeverityLow, "typo in heading"},
		}},
		{Name: "Brand", Score: 6, Issues: []Issue{
			{SeverityHigh, "tone is off"},
			{SeverityMedium, "too long"},
		}},
	}
	d := Decide(critiques, 8, nil)

	want := "[HIGH] (Growth) pricing contradicts strategy\n" +
		"[HIGH] (Brand) tone is off\n" +
		"[MEDIUM] (Growth) CTA is vague\n" +
		"[MEDIUM] (Brand) too long"
	if d.Brief != want {
		t.Errorf("Brief =\n%s\nwant\n%s", d.Brief, want)
	}
	if d.HighIssueCount != 2 {
		t.Errorf("HighIssueCount = %d, want 2", d.HighIssueCount)
	}
}

func TestDecide_Deterministic(t *testing.T) {
	critiques := []Critique{
		{Name: "A", Score: 4, Issues: []Issue{{SeverityMedium, "x"}}},
		{Name: "B", Score: 9, Issues: []Issue{{SeverityHigh, "y"}}},
	}
	first := Decide(critiques, 7, score(5))
	for i := 0; i < 10; i++ {
		if got := Decide(critiques, 7, score(5)); got != first {
			t.Fatalf("run %d: %+v != %+v", i, got, first)
		}
	}
}
