package sliceutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type page struct {
	URL   string
	Title string
}

func TestDeduplicate(t *testing.T) {
	t.Parallel()

	byURL := func(p page) string { return p.URL }
	tests := []struct {
		name  string
		items []page
		want  []page
	}{
		{"nil", nil, nil},
		{"empty", []page{}, []page{}},
		{
			name:  "no duplicates",
			items: []page{{"a", "A"}, {"b", "B"}},
			want:  []page{{"a", "A"}, {"b", "B"}},
		},
		{
			name:  "first occurrence kept",
			items: []page{{"a", "first"}, {"b", "B"}, {"a", "second"}, {"c", "C"}},
			want:  []page{{"a", "first"}, {"b", "B"}, {"c", "C"}},
		},
		{
			name:  "all duplicates",
			items: []page{{"a", "1"}, {"a", "2"}, {"a", "3"}},
			want:  []page{{"a", "1"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Deduplicate(tt.items, byURL))
		})
	}
}

func TestDeduplicate_DoesNotModifyInput(t *testing.T) {
	t.Parallel()

	in := []string{"x", "y", "x"}
	_ = Deduplicate(in, func(s string) string { return s })
	assert.Equal(t, []string{"x", "y", "x"}, in)
}

func TestUnique(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		items []string
		limit int
		want  []string
	}{
		{"nil gives empty", nil, 5, []string{}},
		{"blanks dropped", []string{"", "a", ""}, 0, []string{"a"}},
		{"order kept", []string{"b", "a", "b", "c"}, 0, []string{"b", "a", "c"}},
		{"capped", []string{"a", "", "b", "a", "c", "d"}, 3, []string{"a", "b", "c"}},
		{"limit larger than input", []string{"a"}, 10, []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Unique(tt.items, tt.limit)
			assert.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}
