package orchestrator

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mikey/llm-reply-drafter/internal/core"
	"golang.org/x/net/html"
)

var (
	replyPrefix   = regexp.MustCompile(`(?i)^\s*re\s*:`)
	forwardPrefix = regexp.MustCompile(`(?i)^\s*(fwd?|fw)\s*:`)
	// placeholder signatures models like to append
	namePlaceholder = regexp.MustCompile(`(?i)^\[?\s*(your|my)\s+name\s*\]?$`)
)

// StripSignature removes trailing lines that only repeat the user's name
func StripSignature(message string, names []string) string {
	known := map[string]bool{}
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		known[n] = true
		if first := strings.Fields(n); len(first) > 1 {
			known[first[0]] = true
		}
	}

	lines := strings.Split(strings.TrimRight(message, " \t\r\n"), "\n")
	for len(lines) > 0 {
		last := strings.TrimSpace(lines[len(lines)-1])
		bare := strings.ToLower(strings.Trim(last, "-–— ,.*_"))
		if bare == "" || known[bare] || namePlaceholder.MatchString(bare) {
			lines = lines[:len(lines)-1]
			continue
		}
		break
	}
	return strings.Join(lines, "\n")
}

// resolveRecipients returns the To and Cc lists of a draft for the recipient mode
func resolveRecipients(mode core.RecipientMode, email *core.NormalizedEmail, account *core.Account) (to, cc []string, err error) {
	target := email.ReplyToAddress()
	if target == "" {
		target = email.Sender()
	}

	switch mode {
	case core.RecipientsNone, core.RecipientsForward:
		return []string{}, []string{}, nil
	case core.RecipientsSender:
		if target == "" {
			return []string{}, []string{}, nil
		}
		return []string{target}, []string{}, nil
	case core.RecipientsAll:
		self := map[string]bool{}
		for _, a := range account.Addresses() {
			self[strings.ToLower(a)] = true
		}
		seen := map[string]bool{}
		add := func(list []string, addr string) []string {
			key := strings.ToLower(addr)
			if addr == "" || self[key] || seen[key] {
				return list
			}
			seen[key] = true
			return append(list, addr)
		}

		to, cc = []string{}, []string{}
		to = add(to, target)
		for _, a := range email.To {
			to = add(to, a)
		}
		for _, a := range email.Cc {
			cc = add(cc, a)
		}
		return to, cc, nil
	}
	return nil, nil, fmt.Errorf("unhandled recipient mode %d", mode)
}

func replySubject(subject string, mode core.RecipientMode) string {
	subject = strings.TrimSpace(subject)
	if mode == core.RecipientsForward {
		if forwardPrefix.MatchString(subject) {
			return subject
		}
		return "Fwd: " + subject
	}
	if replyPrefix.MatchString(subject) {
		return subject
	}
	return "Re: " + subject
}

func attribution(email *core.NormalizedEmail) string {
	sender := email.Sender()
	if sender == "" {
		sender = "unknown sender"
	}
	if email.Date.IsZero() {
		return sender + " wrote:"
	}
	return fmt.Sprintf("On %s, %s wrote:", email.Date.Format("Mon, Jan 2, 2006 at 3:04 PM"), sender)
}

func forwardHeader(email *core.NormalizedEmail) string {
	var b strings.Builder
	b.WriteString("---------- Forwarded message ---------\n")
	fmt.Fprintf(&b, "From: %s\n", email.Sender())
	if !email.Date.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", email.Date.Format(time.RFC1123Z))
	}
	fmt.Fprintf(&b, "Subject: %s\n", email.Subject)
	fmt.Fprintf(&b, "To: %s\n", strings.Join(email.To, ", "))
	return b.String()
}

// quoteText builds the plain-text reply with the original quoted below it
func quoteText(message string, email *core.NormalizedEmail, mode core.RecipientMode) string {
	var b strings.Builder
	if message != "" {
		b.WriteString(message)
		b.WriteString("\n\n")
	}
	if mode == core.RecipientsForward {
		b.WriteString(forwardHeader(email))
		b.WriteString("\n")
		b.WriteString(email.Body)
		return b.String()
	}
	b.WriteString(attribution(email))
	b.WriteString("\n")
	for _, line := range strings.Split(strings.TrimRight(email.Body, "\n"), "\n") {
		if line == "" {
			b.WriteString(">\n")
			continue
		}
		b.WriteString("> ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func messageHTML(message string) string {
	var b strings.Builder
	for i, para := range strings.Split(message, "\n\n") {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(para), "\n", "<br>"))
		b.WriteString("</p>")
	}
	return b.String()
}

// quoteHTML builds the HTML reply when the original carried an HTML body
func quoteHTML(message string, email *core.NormalizedEmail, mode core.RecipientMode) string {
	if email.HTMLBody == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString("<div>")
	b.WriteString(messageHTML(message))
	b.WriteString("</div>\n<div class=\"quote\">")
	if mode == core.RecipientsForward {
		b.WriteString(strings.ReplaceAll(html.EscapeString(forwardHeader(email)), "\n", "<br>"))
		b.WriteString("<br>")
		b.WriteString(email.HTMLBody)
	} else {
		b.WriteString(html.EscapeString(attribution(email)))
		b.WriteString("<br>\n<blockquote style=\"margin:0 0 0 .8ex;border-left:1px solid #ccc;padding-left:1ex\">")
		b.WriteString(email.HTMLBody)
		b.WriteString("</blockquote>")
	}
	b.WriteString("</div>")
	return b.String()
}

func references(email *core.NormalizedEmail) []string {
	refs := append([]string{}, email.References...)
	if email.MessageID != "" && (len(refs) == 0 || refs[len(refs)-1] != email.MessageID) {
		refs = append(refs, email.MessageID)
	}
	return refs
}
