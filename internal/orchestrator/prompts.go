package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mikey/llm-reply-drafter/internal/core"
)

const classifySystemPrompt = "You triage incoming email for a busy person and decide how it should be handled. Respond only with JSON."

const responseSystemPrompt = "You write email replies in the exact voice of the person you write for. Respond only with JSON."

const classifyFormat = `Decide how %s should handle this email.

Structure:
- User names: %s
- Sender: %s (relationship: %s)
- Addressed directly: %t
- Recipients: %d in To, %d in Cc
- Thread depth: %d
- Spam check: isSpam=%t, prior replies to sender=%d%s

Email:
Subject: %s
%s

Possible actions:
- silent-fyi-only: informational, no reply needed
- silent-large-list: broadcast or mailing list
- silent-unsubscribe: newsletter or marketing the user would unsubscribe from
- silent-spam: unsolicited or malicious
- silent-todo: needs action from the user but no written reply
- reply-sender: reply to the sender only
- reply-all: reply to everyone on the thread
- forward: pass on without comment
- forward-with-comment: pass on with a short note

Respond with a JSON object containing:
- recommendedAction: one of the actions above
- keyConsiderations: array of short strings explaining what the reply must address

Respond only with the JSON object and nothing else.`

type classifyContext struct {
	email        *core.NormalizedEmail
	account      *core.Account
	relationship core.Relationship
	verdict      *core.SpamVerdict
}

func isAddressedDirectly(email *core.NormalizedEmail, account *core.Account) bool {
	for _, a := range account.Addresses() {
		for _, to := range email.To {
			if strings.EqualFold(a, to) {
				return true
			}
		}
	}
	return false
}

func buildClassifyPrompt(c classifyContext) string {
	indicators := ""
	if len(c.verdict.Indicators) > 0 {
		indicators = ", indicators: " + strings.Join(c.verdict.Indicators, "; ")
	}
	return fmt.Sprintf(classifyFormat,
		ownerName(c.account),
		userNames(c.account),
		c.email.Sender(), c.relationship.Type,
		isAddressedDirectly(c.email, c.account),
		len(c.email.To), len(c.email.Cc),
		len(c.email.References),
		c.verdict.IsSpam, c.verdict.SenderResponseCount, indicators,
		c.email.Subject,
		c.email.SafeBody,
	)
}

func ownerName(account *core.Account) string {
	if len(account.DisplayNames) > 0 {
		return account.DisplayNames[0]
	}
	if account.Email != "" {
		return account.Email
	}
	return "the user"
}

func userNames(account *core.Account) string {
	if len(account.DisplayNames) == 0 {
		return "(none on file)"
	}
	return strings.Join(account.DisplayNames, ", ")
}

type responseContext struct {
	classifyContext
	action         core.Action
	considerations []string
	examples       []core.Example
	patterns       *core.WritingPatterns
	style          *core.StyleProfile
}

// buildResponsePrompt puts instructions and the incoming email first so that
// truncation drops the least important material, the trailing examples.
func buildResponsePrompt(c responseContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write the body of a %s email as %s, replying to %s (relationship: %s, confidence %.2f).\n",
		actionVerb(c.action), ownerName(c.account), c.email.Sender(), c.relationship.Type, c.relationship.Confidence)
	b.WriteString("Match the person's writing style exactly as described below. Do not add a signature with their name.\n\n")

	if len(c.considerations) > 0 {
		b.WriteString("The reply must address:\n")
		for _, k := range c.considerations {
			fmt.Fprintf(&b, "- %s\n", k)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Incoming email:\nFrom: %s\nSubject: %s\n%s\n\n", c.email.Sender(), c.email.Subject, c.email.SafeBody)

	if c.style != nil && c.style.Dominant != "" {
		fmt.Fprintf(&b, "Style profile for this relationship: mostly %s (%s).\n\n", c.style.Dominant, distribution(c.style.Distribution))
	}
	if c.patterns != nil && c.patterns.EmailCount > 0 {
		writePatterns(&b, c.patterns)
	}

	if len(c.examples) > 0 {
		b.WriteString("Past emails written by this person, most relevant first:\n")
		for i, ex := range c.examples {
			direct := ""
			if ex.Metadata.IsDirectCorrespondence {
				direct = ", sent to this same sender"
			}
			fmt.Fprintf(&b, "--- Example %d (%s%s) ---\n%s\n", i+1, ex.Metadata.Relationship, direct, strings.TrimSpace(ex.Text))
		}
		b.WriteString("\n")
	}

	b.WriteString("Respond with a JSON object containing:\n- message: string, the reply body only\n\nRespond only with the JSON object and nothing else.")
	return b.String()
}

func actionVerb(a core.Action) string {
	switch a {
	case core.ActionReplyAll:
		return "reply-all"
	case core.ActionForward, core.ActionForwardWithComment:
		return "forwarding note for an"
	}
	return "reply"
}

func distribution(d map[string]float64) string {
	names := make([]string, 0, len(d))
	for n := range d {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return d[names[i]] > d[names[j]] })
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = fmt.Sprintf("%s %.0f%%", n, d[n]*100)
	}
	return strings.Join(parts, ", ")
}

func topEntries(h map[string]int, n int) string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if h[keys[i]] != h[keys[j]] {
			return h[keys[i]] > h[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%q %d%%", k, h[k])
	}
	return strings.Join(parts, ", ")
}

func writePatterns(b *strings.Builder, p *core.WritingPatterns) {
	fmt.Fprintf(b, "Writing patterns from %d past emails:\n", p.EmailCount)
	s := p.Sentences
	fmt.Fprintf(b, "- Sentence length: median %.0f words (typical range %.0f-%.0f); %.0f%% short, %.0f%% long\n",
		s.Median, s.Q1, s.Q3, s.Histogram["short"]*100, s.Histogram["long"]*100)
	if len(p.ParagraphStructure) > 0 {
		fmt.Fprintf(b, "- Layout: %s\n", topEntries(p.ParagraphStructure, 2))
	}
	if len(p.OpeningLines) > 0 {
		fmt.Fprintf(b, "- Openings: %s\n", topEntries(p.OpeningLines, 3))
	}
	if len(p.Valedictions) > 0 {
		fmt.Fprintf(b, "- Closings: %s\n", topEntries(p.Valedictions, 3))
	}
	for _, n := range p.NegativePatterns {
		fmt.Fprintf(b, "- Avoid: %s\n", n.Description)
	}
	for _, e := range p.UniqueExpressions {
		fmt.Fprintf(b, "- Often says %q (%s)\n", e.Phrase, e.Context)
	}
	writeTiming(b, p.ResponseTiming)
	b.WriteString("\n")
}

// writeTiming tells the model how urgent the user's replies usually read
func writeTiming(b *strings.Builder, t core.ResponseTiming) {
	if t.AverageResponseHours <= 0 && t.PreferredWindow == "" {
		return
	}
	fmt.Fprintf(b, "- Reply timing: typically within %.0f hours", t.AverageResponseHours)
	if t.PreferredWindow != "" {
		fmt.Fprintf(b, ", mostly in the %s", t.PreferredWindow)
	}
	fmt.Fprintf(b, "; %.0f%% on weekends", t.WeekendReplyRate*100)
	if t.Consistency != "" {
		fmt.Fprintf(b, " (%s consistency)", t.Consistency)
	}
	b.WriteString("\n")
}
