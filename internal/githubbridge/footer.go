package githubbridge

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// RenderFooter builds the `<!-- tau-event-key:<key> --> ...` footer
// block appended to chunk 1 of every posted comment (spec §4.8 step 7).
func RenderFooter(eventKey, runID, status, model string, inputTokens, outputTokens int, costLabel string) string {
	total := inputTokens + outputTokens
	return fmt.Sprintf(
		"\n\n---\n%s%s%s\n_Tau run `%s` | status `%s` | model `%s` | tokens in/out/total `%d/%d/%d` | cost `%s`_",
		EventKeyMarkerPrefix, eventKey, eventKeyMarkerSuffix,
		runID, status, model, inputTokens, outputTokens, total, costLabel,
	)
}

// ExtractFooterEventKeys scans a bot-authored comment body for every
// event-key marker — current prefix first, legacy prefix accepted for
// backward-compatible replay dedup (spec §4.8 "Replay discipline") —
// using an HTML comment tokenizer rather than raw substring slicing so
// a marker embedded inside a fenced code block in the rendered body is
// still recognized as the HTML comment GitHub's renderer treats it as.
func ExtractFooterEventKeys(body string) []string {
	var keys []string
	tok := html.NewTokenizer(strings.NewReader(body))
	for {
		tt := tok.Next()
		if tt == html.ErrorToken {
			return keys
		}
		if tt != html.CommentToken {
			continue
		}
		comment := strings.TrimSpace(string(tok.Text()))
		if key, ok := strings.CutPrefix(comment, eventKeyTag); ok {
			keys = append(keys, strings.TrimSpace(key))
			continue
		}
		if key, ok := strings.CutPrefix(comment, legacyEventKeyTag); ok {
			keys = append(keys, strings.TrimSpace(key))
		}
	}
}
