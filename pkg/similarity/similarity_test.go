package similarity

import (
	"math"
	"testing"
)

const tolerance = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < tolerance
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want float64
	}{
		{"identical", "the quick brown fox", "the quick brown fox", 1.0},
		{"both empty", "", "", 1.0},
		{"one empty", "a b", "", 0.0},
		{"other empty", "", "a b", 0.0},
		{"disjoint", "alpha beta", "gamma delta", 0.0},
		{"half overlap", "a b c d", "c d e f", 1.0 / 3.0},
		{"case insensitive", "Hello World", "hello world", 1.0},
		{"punctuation runs split", "hello, world!", "hello world", 1.0},
		{"duplicates collapse", "go go go", "go", 1.0},
		{"punctuation only both", "!!!", "???", 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Jaccard(tt.a, tt.b)
			if !almostEqual(got, tt.want) {
				t.Errorf("Jaccard(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestJaccardSymmetric(t *testing.T) {
	a, b := "one two three", "two three four five"
	if Jaccard(a, b) != Jaccard(b, a) {
		t.Errorf("Jaccard not symmetric: %v vs %v", Jaccard(a, b), Jaccard(b, a))
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"plain", "a b c", []string{"a", "b", "c"}},
		{"mixed separators", "one, two;  three!", []string{"one", "two", "three"}},
		{"lowercased", "Mixed CASE", []string{"mixed", "case"}},
		{"digits kept", "answer 42", []string{"answer", "42"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("Tokenize(%q) = %v, want %v", tt.text, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Tokenize(%q)[%d] = %q, want %q", tt.text, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want int
	}{
		{"identical", "same", "same", 0},
		{"kitten sitting", "kitten", "sitting", 3},
		{"both empty", "", "", 0},
		{"one empty", "abc", "", 3},
		{"single substitution", "cat", "bat", 1},
		{"insertion", "cat", "cart", 1},
		{"combining grapheme single edit", "cafe", "café", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Levenshtein(tt.a, tt.b)
			if got != tt.want {
				t.Errorf("Levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestLevenshteinSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want float64
	}{
		{"identical", "identical text", "identical text", 1.0},
		{"both empty", "", "", 1.0},
		{"one empty", "abc", "", 0.0},
		// distance 3 over max length 7
		{"kitten sitting", "kitten", "sitting", 1.0 - 3.0/7.0},
		{"disjoint same length", "abc", "xyz", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LevenshteinSimilarity(tt.a, tt.b)
			if !almostEqual(got, tt.want) {
				t.Errorf("LevenshteinSimilarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestCombined(t *testing.T) {
	a, b := "the quick brown fox", "the quick brown dog"
	j := Jaccard(a, b)
	e := LevenshteinSimilarity(a, b)

	tests := []struct {
		name          string
		jaccardWeight float64
		editWeight    float64
		want          float64
	}{
		{"equal weights", 1, 1, (j + e) / 2},
		{"jaccard only", 1, 0, j},
		{"edit only", 0, 1, e},
		{"weighted blend", 3, 1, (3*j + e) / 4},
		{"zero weights", 0, 0, 0.0},
		{"negative sum", -1, 0.5, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Combined(a, b, tt.jaccardWeight, tt.editWeight)
			if !almostEqual(got, tt.want) {
				t.Errorf("Combined(%v, %v) = %v, want %v", tt.jaccardWeight, tt.editWeight, got, tt.want)
			}
		})
	}
}

func TestCombinedBounds(t *testing.T) {
	pairs := [][2]string{
		{"", ""},
		{"a", ""},
		{"short", "a much longer piece of text"},
		{"same same", "same same"},
	}
	for _, p := range pairs {
		got := Combined(p[0], p[1], 0.5, 0.5)
		if got < 0 || got > 1 {
			t.Errorf("Combined(%q, %q) = %v, out of [0,1]", p[0], p[1], got)
		}
	}
}
