package importer

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// ParsedCard is one card read from a markdown source before it gets a
// schedule. Context is optional extra material shown with the back.
type ParsedCard struct {
	Front   string
	Back    string
	Context string
}

const (
	frontPrefix   = "Q:"
	backPrefix    = "A:"
	contextPrefix = "C:"
)

type section int

const (
	outside section = iota
	inFront
	inBack
	inContext
)

// ParseFile reads a markdown file and extracts all cards in it.
func ParseFile(path string) ([]ParsedCard, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse extracts cards from a markdown stream. A card starts at a "Q:"
// line, its sections run until the next marker, and "---" or a new "Q:"
// closes the card. Cards without a front are dropped.
func Parse(r io.Reader) ([]ParsedCard, error) {
	var (
		cards   []ParsedCard
		current ParsedCard
		lines   []string
		where   = outside
	)

	closeSection := func() {
		if len(lines) == 0 {
			return
		}
		content := strings.Join(lines, "\n")
		switch where {
		case inFront:
			current.Front = content
		case inBack:
			current.Back = content
		case inContext:
			current.Context = content
		}
		lines = nil
	}

	closeCard := func() {
		closeSection()
		if current.Front != "" {
			cards = append(cards, current)
		}
		current = ParsedCard{}
		where = outside
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		if line == "---" {
			closeCard()
			continue
		}

		var next section
		var marker string
		switch {
		case strings.HasPrefix(line, frontPrefix):
			next, marker = inFront, frontPrefix
		case strings.HasPrefix(line, backPrefix):
			next, marker = inBack, backPrefix
		case strings.HasPrefix(line, contextPrefix):
			next, marker = inContext, contextPrefix
		default:
			if where != outside {
				lines = append(lines, line)
			}
			continue
		}

		if next == inFront && where != outside {
			closeCard()
		} else {
			closeSection()
		}
		where = next
		lines = append(lines, strings.TrimPrefix(line[len(marker):], " "))
	}
	closeCard()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cards, nil
}
