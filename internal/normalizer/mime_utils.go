package normalizer

import (
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"

	"github.com/mikey/llm-reply-drafter/internal/core"
	"golang.org/x/text/encoding/htmlindex"
)

const maxPartDepth = 8

// parts collects the text alternatives of a message
type parts struct {
	plain       []string
	html        []string
	attachments int
}

var wordDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, err
	}
	return enc.NewDecoder().Reader(input), nil
}

// decodeCharset converts a part body to UTF-8, leaving unknown charsets untouched
func decodeCharset(charset string, r io.Reader) io.Reader {
	switch strings.ToLower(charset) {
	case "", "utf-8", "utf8", "us-ascii":
		return r
	}
	decoded, err := charsetReader(charset, r)
	if err != nil {
		return r
	}
	return decoded
}

func decodeTransfer(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, &newlineStripper{r: r})
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	}
	return r
}

// newlineStripper drops CR and LF so base64 bodies wrapped at 76 columns decode
type newlineStripper struct {
	r io.Reader
}

func (n *newlineStripper) Read(p []byte) (int, error) {
	for {
		c, err := n.r.Read(p)
		out := 0
		for _, b := range p[:c] {
			if b != '\r' && b != '\n' {
				p[out] = b
				out++
			}
		}
		if out > 0 || err != nil {
			return out, err
		}
	}
}

func isAttachment(h textproto.MIMEHeader) bool {
	disp, params, err := mime.ParseMediaType(h.Get("Content-Disposition"))
	if err == nil && (disp == "attachment" || params["filename"] != "") {
		return true
	}
	_, ctParams, err := mime.ParseMediaType(h.Get("Content-Type"))
	return err == nil && ctParams["name"] != ""
}

// walk extracts text alternatives from a part, descending into nested multiparts
func (p *parts) walk(h textproto.MIMEHeader, body io.Reader, depth int) error {
	contentType := h.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		if strings.Contains(strings.ToLower(contentType), "multipart/") {
			return &core.ParseError{Reason: "malformed multipart content type", Err: err}
		}
		mediaType, params = "text/plain", map[string]string{}
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		if depth >= maxPartDepth {
			return &core.ParseError{Reason: "multipart nesting too deep"}
		}
		boundary, ok := params["boundary"]
		if !ok || boundary == "" {
			return &core.ParseError{Reason: "multipart message without boundary"}
		}
		mr := multipart.NewReader(body, boundary)
		seen := 0
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				if seen > 0 {
					// trailing garbage after the last readable part
					break
				}
				return &core.ParseError{Reason: "unreadable multipart body", Err: err}
			}
			seen++
			if err := p.walk(part.Header, part, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	if isAttachment(h) || !strings.HasPrefix(mediaType, "text/") {
		p.attachments++
		return nil
	}

	// multipart.Part already undoes quoted-printable
	encoding := h.Get("Content-Transfer-Encoding")
	content, err := io.ReadAll(decodeCharset(params["charset"], decodeTransfer(encoding, body)))
	if err != nil {
		// a broken text part degrades to empty rather than failing the message
		return nil
	}

	switch mediaType {
	case "text/html":
		p.html = append(p.html, string(content))
	case "text/plain":
		p.plain = append(p.plain, string(content))
	default:
		p.attachments++
	}
	return nil
}
