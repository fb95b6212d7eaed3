package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestWebSearcherParsesOrganicResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "small claims limit" {
			t.Errorf("q = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"organic_results":[
			{"title":"A","link":"https://a","snippet":"sa"},
			{"title":"B","link":"https://b","snippet":"sb"},
			{"title":"C","link":"https://c","snippet":"sc"},
			{"title":"D","link":"https://d","snippet":"sd"},
			{"title":"E","link":"https://e","snippet":"se"},
			{"title":"F","link":"https://f","snippet":"sf"}
		]}`))
	}))
	defer srv.Close()

	s := NewWebSearcher(srv.URL, "key", time.Second)
	results, err := s.Search(context.Background(), "  small claims limit ")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != defaultSearchResults {
		t.Fatalf("results = %d, want %d", len(results), defaultSearchResults)
	}
	if results[0].Title != "A" || results[0].Link != "https://a" {
		t.Fatalf("results[0] = %+v", results[0])
	}

	formatted := formatResults(results)
	if !strings.HasPrefix(formatted, "1. A\nhttps://a\nsa") {
		t.Fatalf("formatResults() = %q", formatted)
	}
}

func TestWebSearcherErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewWebSearcher(srv.URL, "bad", time.Second)
	if _, err := s.Search(context.Background(), "q"); err == nil {
		t.Fatal("Search() error = nil, want status error")
	}
	if _, err := s.Search(context.Background(), "   "); err != errEmptyQuery {
		t.Fatalf("Search(empty) error = %v, want errEmptyQuery", err)
	}
	if got := formatResults(nil); got != "No results found." {
		t.Fatalf("formatResults(nil) = %q", got)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{name: "short", in: "abc", n: 5, want: "abc"},
		{name: "ascii", in: "abcdef", n: 3, want: "abc..."},
		{name: "inside multibyte rune", in: "ab€cd", n: 3, want: "ab..."},
		{name: "rune boundary", in: "ab€cd", n: 5, want: "ab€..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := truncate(tt.in, tt.n)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate(%q, %d) = %q is not valid UTF-8", tt.in, tt.n, got)
			}
		})
	}
}
