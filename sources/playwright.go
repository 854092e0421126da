package sources

import (
	"regexp"
	"strings"

	"github.com/hazyhaar/flowkeeper/sanitize"
)

// Placeholder is the value recorded for fill and selectOption steps. The
// script's literal is never kept.
const Placeholder = "<PLACEHOLDER>"

var (
	pwGoto   = regexp.MustCompile(`page\.goto\(["'](.*?)["']`)
	pwFill   = regexp.MustCompile(`page\.(getByRole|getByLabel|getByTitle|getByPlaceholder|locator)\(.*?\)\.fill\(["'].*?["']\)`)
	pwClick  = regexp.MustCompile(`page\.(getByRole|getByText|getByLabel|getByTitle|getByTestId|locator)\(.*?\)\.click\(\)`)
	pwSelect = regexp.MustCompile(`page\.(getByRole|getByLabel|locator)\(.*?\)\.selectOption\(["'].*?["']\)`)
)

// ParsePlaywright extracts goto, fill, click and selectOption steps from
// Playwright TypeScript, one statement per line. The selector is the
// locator expression, e.g. `page.getByLabel('Email')`. Lines that match no
// pattern are ignored.
func ParsePlaywright(code string) []sanitize.RawEvent {
	var steps []sanitize.RawEvent
	for _, line := range strings.Split(code, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "await ")

		if m := pwGoto.FindStringSubmatch(line); m != nil {
			steps = append(steps, sanitize.RawEvent{"action": "goto", "url": m[1]})
			continue
		}
		if pwFill.MatchString(line) {
			steps = append(steps, sanitize.RawEvent{
				"action":   "fill",
				"selector": locator(line, ".fill("),
				"value":    Placeholder,
			})
			continue
		}
		if pwClick.MatchString(line) {
			steps = append(steps, sanitize.RawEvent{
				"action":   "click",
				"selector": locator(line, ".click("),
			})
			continue
		}
		if pwSelect.MatchString(line) {
			steps = append(steps, sanitize.RawEvent{
				"action":   "select_option",
				"selector": locator(line, ".selectOption("),
				"value":    Placeholder,
			})
		}
	}
	return steps
}

// locator is the text before the action call, starting at "page.".
func locator(line, call string) string {
	if i := strings.Index(line, call); i >= 0 {
		line = line[:i]
	}
	if i := strings.Index(line, "page."); i >= 0 {
		line = line[i:]
	}
	return line
}
