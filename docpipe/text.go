package docpipe

import (
	"os"
	"strings"
	"unicode/utf8"
)

func extractText(path string) (string, []Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	text := toValidUTF8(data)
	return firstLine(text), singlePage(text), nil
}

// extractMarkdown keeps the prose and drops ATX heading markers and code
// fences; the first heading becomes the title.
func extractMarkdown(path string) (string, []Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}

	var title string
	var b strings.Builder
	for _, line := range strings.Split(toValidUTF8(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			heading := strings.TrimSpace(strings.Trim(trimmed, "#"))
			if heading == "" {
				continue
			}
			if title == "" {
				title = heading
			}
			trimmed = heading
		}
		b.WriteString(trimmed)
		b.WriteByte('\n')
	}
	text := b.String()
	if title == "" {
		title = firstLine(text)
	}
	return title, singlePage(text), nil
}

func toValidUTF8(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "")
}
