package importer

import (
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name            string
		input           string
		expectedCards   int
		expectedFront   string
		expectedBack    string
		expectedContext string
	}{
		{
			name:          "simple front and back",
			input:         "Q: What is the capital of France?\nA: Paris",
			expectedCards: 1,
			expectedFront: "What is the capital of France?",
			expectedBack:  "Paris",
		},
		{
			name:            "front, back and context",
			input:           "Q: What is 1+1?\nA: 2\nC: Basic arithmetic",
			expectedCards:   1,
			expectedFront:   "What is 1+1?",
			expectedBack:    "2",
			expectedContext: "Basic arithmetic",
		},
		{
			name: "multiline back",
			input: `
Q: What are the primary colors?
A: Red
Blue
Yellow
`,
			expectedCards: 1,
			expectedFront: "What are the primary colors?",
			expectedBack:  "Red\nBlue\nYellow",
		},
		{
			name: "two cards split by a new question",
			input: `
Q: First question
A: First answer

Q: Second question
A: Second answer
`,
			expectedCards: 2,
		},
		{
			name: "separator closes a card",
			input: `
Q: One
A: 1
---
Q: Two
A: 2
`,
			expectedCards: 2,
		},
		{
			name:          "back without a front is dropped",
			input:         "A: orphaned answer",
			expectedCards: 0,
		},
		{
			name:          "empty input",
			input:         "",
			expectedCards: 0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cards, err := Parse(strings.NewReader(tc.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(cards) != tc.expectedCards {
				t.Fatalf("expected %d cards, got %d", tc.expectedCards, len(cards))
			}
			if tc.expectedCards == 0 || tc.expectedFront == "" {
				return
			}
			if cards[0].Front != tc.expectedFront {
				t.Errorf("expected front %q, got %q", tc.expectedFront, cards[0].Front)
			}
			if cards[0].Back != tc.expectedBack {
				t.Errorf("expected back %q, got %q", tc.expectedBack, cards[0].Back)
			}
			if cards[0].Context != tc.expectedContext {
				t.Errorf("expected context %q, got %q", tc.expectedContext, cards[0].Context)
			}
		})
	}
}
