package engineer

import "testing"

func TestContentSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		min  float64
		max  float64
	}{
		{
			name: "identical",
			a:    "heat pumps move warmth rather than generate it",
			b:    "heat pumps move warmth rather than generate it",
			min:  1, max: 1,
		},
		{
			name: "case and whitespace insensitive",
			a:    "Heat Pumps  move warmth\trather than generate it",
			b:    "heat pumps move warmth rather than generate it",
			min:  1, max: 1,
		},
		{
			name: "near duplicate",
			a:    "heat pumps move warmth rather than generate it directly from fuel",
			b:    "heat pumps move warmth rather than generate it directly from fuels",
			min:  0.8, max: 0.99,
		},
		{
			name: "unrelated",
			a:    "heat pumps move warmth rather than generate it",
			b:    "window glazing affects light transmission through glass panes",
			min:  0, max: 0.05,
		},
		{
			name: "both empty",
			a:    "", b: "",
			min: 1, max: 1,
		},
		{
			name: "one empty",
			a:    "something", b: "",
			min: 0, max: 0,
		},
		{
			name: "single word equal",
			a:    "insulation", b: "Insulation",
			min: 1, max: 1,
		},
		{
			name: "single word different",
			a:    "insulation", b: "plumbing",
			min: 0, max: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ContentSimilarity(tt.a, tt.b)
			if got < tt.min || got > tt.max {
				t.Errorf("ContentSimilarity(%q, %q) = %g, want in [%g, %g]", tt.a, tt.b, got, tt.min, tt.max)
			}
			// Symmetric by construction.
			if rev := ContentSimilarity(tt.b, tt.a); rev != got {
				t.Errorf("similarity not symmetric: %g vs %g", got, rev)
			}
		})
	}
}
