package orchestrator

import (
	"strings"
	"testing"
	"time"

	"github.com/mikey/llm-reply-drafter/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripSignature(t *testing.T) {
	names := []string{"Mike Austin"}
	tests := []struct {
		in   string
		want string
	}{
		{"Sounds good.\n\nMike", "Sounds good."},
		{"Sounds good.\n\n-- \nMike Austin\n", "Sounds good."},
		{"Sounds good.\n[Your Name]", "Sounds good."},
		{"Sounds good.\n\nCheers,\nMike", "Sounds good.\n\nCheers,"},
		{"Mike will be there too.", "Mike will be there too."},
		{"Sounds good.", "Sounds good."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripSignature(tt.in, names), tt.in)
	}
}

func TestResolveRecipients(t *testing.T) {
	account := &core.Account{Email: "me@example.com", Aliases: []string{"alias@example.com"}}
	email := &core.NormalizedEmail{
		From:    []string{"boss@example.com"},
		ReplyTo: []string{"list@example.com"},
		To:      []string{"me@example.com", "peer@example.com", "BOSS@example.com"},
		Cc:      []string{"alias@example.com", "peer@example.com", "other@example.com"},
	}

	to, cc, err := resolveRecipients(core.RecipientsSender, email, account)
	require.NoError(t, err)
	assert.Equal(t, []string{"list@example.com"}, to)
	assert.Empty(t, cc)

	to, cc, err = resolveRecipients(core.RecipientsAll, email, account)
	require.NoError(t, err)
	assert.Equal(t, []string{"list@example.com", "peer@example.com", "BOSS@example.com"}, to)
	assert.Equal(t, []string{"other@example.com"}, cc)

	to, cc, err = resolveRecipients(core.RecipientsForward, email, account)
	require.NoError(t, err)
	assert.Empty(t, to)
	assert.Empty(t, cc)

	_, _, err = resolveRecipients(core.RecipientMode(42), email, account)
	assert.Error(t, err)
}

func TestReplySubject(t *testing.T) {
	assert.Equal(t, "Re: Hello", replySubject("Hello", core.RecipientsSender))
	assert.Equal(t, "RE: Hello", replySubject("RE: Hello", core.RecipientsAll))
	assert.Equal(t, "Fwd: Hello", replySubject("Hello", core.RecipientsForward))
	assert.Equal(t, "Fw: Hello", replySubject("Fw: Hello", core.RecipientsForward))
	assert.Equal(t, "Re: ", replySubject("", core.RecipientsNone))
}

func TestQuoteTextForward(t *testing.T) {
	email := &core.NormalizedEmail{
		From:    []string{"anna@example.com"},
		To:      []string{"mike@example.com"},
		Subject: "Report",
		Date:    time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		Body:    "See attached numbers.",
	}

	got := quoteText("FYI below.", email, core.RecipientsForward)

	assert.Equal(t, "FYI below.\n\n"+
		"---------- Forwarded message ---------\n"+
		"From: anna@example.com\n"+
		"Date: Mon, 02 Mar 2026 10:00:00 +0000\n"+
		"Subject: Report\n"+
		"To: mike@example.com\n"+
		"\n"+
		"See attached numbers.", got)
}

func TestQuoteTextReplyWithoutDate(t *testing.T) {
	email := &core.NormalizedEmail{From: []string{"anna@example.com"}, Body: "line one\n\nline two\n"}

	got := quoteText("ok", email, core.RecipientsSender)

	assert.Equal(t, "ok\n\nanna@example.com wrote:\n> line one\n>\n> line two\n", got)
}

func TestQuoteHTMLRequiresHTMLOriginal(t *testing.T) {
	email := &core.NormalizedEmail{From: []string{"a@example.com"}, Body: "plain"}
	assert.Empty(t, quoteHTML("hi", email, core.RecipientsSender))

	email.HTMLBody = "<p>rich</p>"
	got := quoteHTML("a & b\n\nsecond", email, core.RecipientsSender)
	assert.Contains(t, got, "<p>a &amp; b</p>\n<p>second</p>")
	assert.Contains(t, got, "<blockquote")
	assert.Contains(t, got, "<p>rich</p>")
}

func TestReferencesAppendsMessageID(t *testing.T) {
	email := &core.NormalizedEmail{MessageID: "<b@x>", References: []string{"<a@x>"}}
	assert.Equal(t, []string{"<a@x>", "<b@x>"}, references(email))

	email.References = []string{"<a@x>", "<b@x>"}
	assert.Equal(t, []string{"<a@x>", "<b@x>"}, references(email))

	assert.Empty(t, references(&core.NormalizedEmail{}))
}

func TestWritePatternsIncludesResponseTiming(t *testing.T) {
	p := &core.WritingPatterns{
		EmailCount: 12,
		ResponseTiming: core.ResponseTiming{
			AverageResponseHours: 3,
			WeekendReplyRate:     0.25,
			PreferredWindow:      "morning",
			Consistency:          "high",
		},
	}
	var b strings.Builder
	writePatterns(&b, p)
	assert.Contains(t, b.String(), "- Reply timing: typically within 3 hours, mostly in the morning; 25% on weekends (high consistency)\n")

	b.Reset()
	writePatterns(&b, &core.WritingPatterns{EmailCount: 12})
	assert.NotContains(t, b.String(), "Reply timing")
}
