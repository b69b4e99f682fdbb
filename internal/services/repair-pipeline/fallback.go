// internal/services/repair-pipeline/fallback.go
package repairpipeline

import (
	"strings"

	"clarify-api/internal/common/completion"
)

const (
	systemPrompt = "You are a JSON repair expert."
	promptHeader = "The following JSON string is broken. Please repair it. " +
		"Only output the repaired JSON object without any explanation or formatting.\n" +
		"Broken JSON:\n"
)

// buildRequest embeds the broken text verbatim.
func buildRequest(broken string) completion.Request {
	return completion.Request{
		System: systemPrompt,
		User:   promptHeader + broken,
	}
}

// cleanJSONBlock removes a Markdown code fence around the model output.
// Models tend to add one even when told not to.
func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```")
	if idx := strings.Index(text, "\n"); idx >= 0 {
		firstLine := text[:idx]
		// language tag such as "json"
		if len(firstLine) < 20 && !strings.ContainsAny(firstLine, " {[\"") {
			text = text[idx+1:]
		}
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
