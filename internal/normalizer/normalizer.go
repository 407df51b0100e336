package normalizer

import (
	"bytes"
	"net/mail"
	"net/textproto"
	"strings"

	"github.com/mikey/llm-reply-drafter/internal/core"
	"go.uber.org/zap"
)

// PlaceholderBody is used when a message carries no readable text
const PlaceholderBody = "[No text content]"

// Normalizer turns raw RFC 5322 messages into NormalizedEmail values
type Normalizer struct {
	logger *zap.Logger
}

// New creates a new normalizer
func New(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize parses a raw message. The raw bytes are copied and never modified.
func (n *Normalizer) Normalize(raw []byte) (*core.NormalizedEmail, error) {
	archived := append([]byte(nil), raw...)

	msg, err := mail.ReadMessage(bytes.NewReader(archived))
	if err != nil {
		return nil, &core.ParseError{Reason: "invalid header block", Err: err}
	}

	email := &core.NormalizedEmail{
		MessageID:  strings.TrimSpace(msg.Header.Get("Message-ID")),
		From:       addressList(msg.Header, "From"),
		To:         addressList(msg.Header, "To"),
		Cc:         addressList(msg.Header, "Cc"),
		ReplyTo:    addressList(msg.Header, "Reply-To"),
		InReplyTo:  strings.TrimSpace(msg.Header.Get("In-Reply-To")),
		References: strings.Fields(msg.Header.Get("References")),
		Subject:    decodeHeader(msg.Header.Get("Subject")),
		Headers:    map[string][]string(msg.Header),
		Raw:        archived,
	}
	if date, err := msg.Header.Date(); err == nil {
		email.Date = date
	}

	var p parts
	if err := p.walk(textproto.MIMEHeader(msg.Header), msg.Body, 0); err != nil {
		return nil, err
	}

	email.Body = cleanText(strings.Join(p.plain, "\n"))
	if len(p.html) > 0 {
		email.HTMLBody = strings.Join(p.html, "\n")
	}
	if email.Body == "" && email.HTMLBody != "" {
		email.Body = htmlToText(email.HTMLBody)
	}
	if email.Body == "" {
		email.Body = PlaceholderBody
	}
	email.SafeBody = email.Body

	n.logger.Debug("Normalized email",
		zap.String("message_id", email.MessageID),
		zap.Int("plain_parts", len(p.plain)),
		zap.Int("html_parts", len(p.html)),
		zap.Int("attachments_stripped", p.attachments))

	return email, nil
}

func decodeHeader(v string) string {
	decoded, err := wordDecoder.DecodeHeader(v)
	if err != nil {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(decoded)
}

// addressList returns lowercase addresses of a header. Unparseable lists degrade to the tokens that look like addresses.
func addressList(h mail.Header, key string) []string {
	v := h.Get(key)
	if strings.TrimSpace(v) == "" {
		return []string{}
	}
	parser := mail.AddressParser{WordDecoder: wordDecoder}
	list, err := parser.ParseList(v)
	if err == nil {
		out := make([]string, 0, len(list))
		for _, a := range list {
			out = append(out, strings.ToLower(a.Address))
		}
		return out
	}

	out := []string{}
	for _, tok := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ';' || r == ' ' }) {
		tok = strings.Trim(tok, "<>\"'")
		if strings.Count(tok, "@") == 1 {
			out = append(out, strings.ToLower(tok))
		}
	}
	return out
}
