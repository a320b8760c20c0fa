package githubbridge

import (
	"fmt"
	"strings"
)

// RenderCommentChunks splits a rendered reply body into the comment
// chunks GitHub actually receives, exactly matching the invariant of
// spec §4.8 step 7: chunk 1 always carries footer (the event-key
// marker plus run metadata) within maxChars; if content plus footer
// would exceed the ceiling, content is cut at a safe rune index so
// chunk 1 still fits, and the remainder is appended as footer-less
// follow-up comments. If the footer alone is at or over the ceiling,
// chunk 1 is the footer block by itself.
//
// This mirrors the teacher's internal/channels/chunk package (rune-
// aware splitting, no mid-rune cuts) generalized to the footer-in-
// chunk-1 invariant the teacher's own chunker does not need, since it
// never has to reserve trailing space for a fixed block.
func RenderCommentChunks(content, footer string, maxChars int) []string {
	footerBlock := "\n\n---\n" + footer
	footerLen := len([]rune(footerBlock))

	if maxChars == 0 {
		return nil
	}
	if footerLen >= maxChars {
		return []string{footerBlock}
	}

	contentRunes := []rune(content)
	if len(contentRunes)+footerLen <= maxChars {
		return []string{content + footerBlock}
	}

	maxFirstLen := maxChars - footerLen
	firstContent, remainder := splitAtCharIndex(content, maxFirstLen)

	chunks := []string{firstContent + footerBlock}
	chunks = append(chunks, chunkTextByChars(remainder, maxChars)...)
	return chunks
}

// splitAtCharIndex splits s at the n-th rune boundary, returning
// (s[:n], s[n:]) in rune terms. n beyond len(s)'s rune count returns
// (s, "").
func splitAtCharIndex(s string, n int) (string, string) {
	runes := []rune(s)
	if n < 0 {
		n = 0
	}
	if n >= len(runes) {
		return s, ""
	}
	return string(runes[:n]), string(runes[n:])
}

// chunkTextByChars hard-splits s into chunks of at most max runes
// each, with no footer and no word-boundary preference — follow-up
// comments carry raw overflow content only.
func chunkTextByChars(s string, max int) []string {
	if s == "" || max <= 0 {
		return nil
	}
	runes := []rune(s)
	var chunks []string
	for len(runes) > 0 {
		n := max
		if n > len(runes) {
			n = len(runes)
		}
		chunks = append(chunks, string(runes[:n]))
		runes = runes[n:]
	}
	return chunks
}

// RenderRunCommentParts builds the (content, footer) pair for a
// completed run (spec §4.8 step 7), mirroring
// render_issue_comment_response_parts: content defaults to a
// placeholder when the assistant produced no text, and the footer
// records run/artifact metadata beneath the event-key marker.
func RenderRunCommentParts(assistantReply, eventKey, runID, status, model string, inputTokens, outputTokens int, artifactRelPath, artifactSHA256 string, artifactBytes, downloadedAttachments int) (content, footer string) {
	content = strings.TrimSpace(assistantReply)
	if content == "" {
		content = "I couldn't generate a textual response for this event."
	}

	total := inputTokens + outputTokens
	footer = fmt.Sprintf(
		"%s%s%s\n_Tau run `%s` | status `%s` | model `%s` | tokens in/out/total `%d/%d/%d` | cost `unavailable`_\n_artifact `%s` | sha256 `%s` | bytes `%d`_",
		EventKeyMarkerPrefix, eventKey, eventKeyMarkerSuffix,
		runID, status, model, inputTokens, outputTokens, total,
		artifactRelPath, artifactSHA256, artifactBytes,
	)
	if downloadedAttachments > 0 {
		footer += fmt.Sprintf("\n_attachments downloaded `%d`_", downloadedAttachments)
	}
	return content, footer
}

// RenderCommandComment renders the reply to a parsed /tau sub-command
// (spec §4.8 step 4d), mirroring render_issue_command_comment.
func RenderCommandComment(eventKey, command, status, message string) string {
	content := strings.TrimSpace(message)
	if content == "" {
		content = "Tau command response."
	}
	command = strings.TrimSpace(command)
	if command == "" {
		command = "unknown"
	}
	status = strings.TrimSpace(status)
	if status == "" {
		status = "unknown"
	}
	return fmt.Sprintf(
		"%s\n\n---\n%s%s%s\n_Tau command `%s` | status `%s`_",
		content, EventKeyMarkerPrefix, eventKey, eventKeyMarkerSuffix, command, status,
	)
}
