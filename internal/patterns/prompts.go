package patterns

import (
	"fmt"
	"strings"
)

const systemPrompt = "You analyze the writing habits of one person from their sent emails. Respond only with JSON."

const promptFormat = `Below are %d emails written by the same person to their %s contacts. Names are redacted.

Identify:
1. negativePatterns: things this person consistently avoids in their writing
2. responseTiming: how they tend to respond
3. uniqueExpressions: distinctive phrases they reuse, with the context they appear in

Emails:
%s

Respond with a JSON object containing:
- negativePatterns: array of {description: string, confidence: number 0-1, examples: array of strings}
- responseTiming: {averageResponseHours: number, weekendReplyRate: number 0-1, preferredWindow: string, consistency: string}
- uniqueExpressions: array of {phrase: string, context: string, occurrenceRate: number 0-1}

Respond only with the JSON object and nothing else.`

func buildPrompt(relationship string, emails []string) string {
	var b strings.Builder
	for i, e := range emails {
		fmt.Fprintf(&b, "--- Email %d ---\n%s\n", i+1, strings.TrimSpace(e))
	}
	who := relationship
	if who == "" {
		who = "all"
	}
	return fmt.Sprintf(promptFormat, len(emails), who, b.String())
}
