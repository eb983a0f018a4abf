package crawler

import "testing"

func TestVisited_Add(t *testing.T) {
	v := NewVisited()

	if !v.Add("https://example.com/browse?page=2") {
		t.Error("first Add should return true")
	}
	if v.Add("https://example.com/browse?page=2#top") {
		t.Error("Add should ignore fragments")
	}
	if !v.Add("https://example.com/browse?page=3") {
		t.Error("different query should be a new page")
	}
	if v.Add("") {
		t.Error("empty URL should not be added")
	}
	if v.Len() != 2 {
		t.Errorf("Len() = %d, want 2", v.Len())
	}
	if !v.IsVisited("https://example.com/browse?page=3") {
		t.Error("IsVisited() = false")
	}
}

func TestSameURL(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"https://example.com/browse/", "https://example.com/browse", true},
		{"https://example.com/browse#grid", "https://example.com/browse", true},
		{"https://example.com/browse?page=1", "https://example.com/browse?page=2", false},
		{"https://example.com/", "https://example.com/", true},
		{"", "", false},
	}
	for _, tt := range tests {
		if got := SameURL(tt.a, tt.b); got != tt.want {
			t.Errorf("SameURL(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestIsSameDomain(t *testing.T) {
	if !IsSameDomain("https://books.example.com/a", "https://books.example.com/b?x=1") {
		t.Error("expected same domain")
	}
	if IsSameDomain("https://books.example.com/a", "https://ads.example.net/a") {
		t.Error("expected different domain")
	}
}
