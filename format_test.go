package relay_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zowobo/relay"
)

func TestFormatForDelivery(t *testing.T) {
	tcs := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"Bonjou!", "Bonjou!"},
		{"Answer 【cite-1】 is **42**", "Answer  is *42*"},
		{"  padded 【4:0†source】  ", "padded"},
		{"【a】【b】", ""},
		{"nested 【a【b】c】", "nested c】"},
		{"unclosed 【citation", "unclosed 【citation"},
		{"**one** and **two**", "*one* and *two*"},
		{"already *bold*", "already *bold*"},
		{"****", "**"},
		{"******", "**"},
		{"***a***", "*a*"},
		{"*【x】*", "**"},
		{"**multi\nline**", "**multi\nline**"},
	}

	for _, tc := range tcs {
		assert.Equal(t, tc.expected, relay.FormatForDelivery(tc.input), "format mismatch for input %q", tc.input)
	}
}

func TestFormatForDeliveryIsIdempotent(t *testing.T) {
	inputs := []string{
		"Answer 【cite-1】 is **42**",
		"***a***",
		"******",
		"*****x*****",
		"**【**】**",
		"【】**【】**",
		" ** ** ",
		"mixed *single* **double** ***triple***",
	}

	for _, input := range inputs {
		once := relay.FormatForDelivery(input)
		assert.Equal(t, once, relay.FormatForDelivery(once), "format not idempotent for input %q", input)
	}
}
