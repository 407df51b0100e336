package normalizer

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	blankRun   = regexp.MustCompile(`\n{3,}`)
	spaceRun   = regexp.MustCompile(`[ \t\f\v]+`)
	inlineData = regexp.MustCompile(`data:[a-zA-Z0-9.+/-]+;base64,[A-Za-z0-9+/=]+`)
)

var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "table": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "ul": true, "ol": true, "hr": true, "pre": true,
}

var skipTags = map[string]bool{
	"script": true, "style": true, "head": true, "title": true, "noscript": true,
}

// htmlToText renders the visible text of an HTML body. Link targets and images are dropped.
func htmlToText(src string) string {
	z := html.NewTokenizer(strings.NewReader(src))
	var b strings.Builder
	skipDepth := 0

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF or broken markup: keep what was rendered so far
			return cleanText(b.String())
		case html.StartTagToken, html.SelfClosingTagToken:
			// <script/> has no content and no end tag
			if tt == html.SelfClosingTagToken {
				z.NextIsNotRawText()
			}
			name, _ := z.TagName()
			tag := string(name)
			if skipTags[tag] {
				if tt == html.StartTagToken {
					skipDepth++
				}
				continue
			}
			if blockTags[tag] {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skipTags[tag] {
				if skipDepth > 0 {
					skipDepth--
				}
				continue
			}
			if blockTags[tag] {
				b.WriteByte('\n')
			}
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			b.Write(z.Text())
		}
	}
}

// cleanText collapses horizontal whitespace and runs of blank lines
func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = inlineData.ReplaceAllString(s, "")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	return strings.TrimSpace(blankRun.ReplaceAllString(s, "\n\n"))
}
