package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  What’s my MAJOR? ", "what's my major?"},
		{"Ｃａｆｅ Ｑ", "cafe q"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestWords(t *testing.T) {
	assert.Equal(t, []string{"what's", "up", "hello"}, Words("what's up... hello!"))
	assert.Empty(t, Words("?!"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "abc", Truncate("abc", 0))
	// "é" is two bytes; cutting inside it backs off to the rune start.
	assert.Equal(t, "caf", Truncate("café", 4))
}

func TestFormatReply(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"bullets", "Options: - Cafe Q - Bobcat Den", "Options:\n- Cafe Q\n- Bobcat Den"},
		{"numbered", "Steps: 1. Log in 2. Select Dining", "Steps:\n1. Log in\n2. Select Dining"},
		{"heading", "**Hours**: Open daily", "**Hours**:\nOpen daily"},
		{"heading glued bullet", "Intro **Where**: - Library", "Intro\n\n**Where**:\n- Library"},
		{"blank runs", "a\r\n\r\n\r\n\r\nb", "a\n\nb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatReply(tt.in))
		})
	}
}

func TestSanitizer(t *testing.T) {
	s := NewSanitizer([]string{"# comment", "", "darn", "heck no"})
	tests := []struct {
		in, want string
	}{
		{"well darn it", "well **** it"},
		{"DARN", "****"},
		{"d a r n", "****"},
		{"daarn", "****"},
		{"heck   no", "****"},
		{"h3ck no", "****"},
		{"darning socks", "darning socks"},
		{"clean reply", "clean reply"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Sanitize(tt.in))
		})
	}
}

func TestSanitizerEmptyAndNil(t *testing.T) {
	assert.Equal(t, "anything", NewSanitizer(nil).Sanitize("anything"))
	var s *Sanitizer
	assert.Equal(t, "anything", s.Sanitize("anything"))
}

func TestDefaultSanitizerKeepsInnocentWords(t *testing.T) {
	s := DefaultSanitizer()
	assert.Equal(t, "Your class assignment is posted.", s.Sanitize("Your class assignment is posted."))
	assert.Equal(t, "What the ****?", s.Sanitize("What the shit?"))
}

func TestDefaultSanitizerKeepsPrices(t *testing.T) {
	s := DefaultSanitizer()
	for _, in := range []string{
		"Parking costs as $5 per day.",
		"You can pay as $500 up front.",
		"Meal swipes are as 5 credits.",
		"Tuition is listed as $55,000 per year.",
	} {
		assert.Equal(t, in, s.Sanitize(in))
	}
	assert.Equal(t, "That is ****.", s.Sanitize("That is sh1t."))
	assert.Equal(t, "Oh ****", s.Sanitize("Oh s h i t"))
}

func TestCleanTechnicalReferences(t *testing.T) {
	got := CleanTechnicalReferences("Based on the FAQ DATABASE, bills arrive in June. Check your USER PROFILE.")
	assert.Equal(t, "bills arrive in June. Check your your profile.", got)
}

func TestStripLinkMarkup(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"markdown", "Visit [the menu](https://dineoncampus.com/quinnipiac) now", "Visit https://dineoncampus.com/quinnipiac now"},
		{"anchor", `See <a href="https://qu.edu/x">https://qu.edu/x</a> today`, "See https://qu.edu/x today"},
		{"quote glued to url", "Menu: https://qu.edu/y'extra more", "Menu: https://qu.edu/y more"},
		{"plain", "Plain https://qu.edu/z.", "Plain https://qu.edu/z."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripLinkMarkup(tt.in))
		})
	}
}

func TestCleanURL(t *testing.T) {
	assert.Equal(t, "https://qu.edu/events", CleanURL(`https://qu.edu/events" target="_blank">`))
	assert.Equal(t, "https://qu.edu/a", CleanURL("https://qu.edu/a)."))
	assert.Equal(t, "not a url", CleanURL("  not a url "))
}
