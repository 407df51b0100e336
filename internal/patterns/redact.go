package patterns

import (
	"regexp"
	"strings"
	"unicode"
)

// Redaction placeholders
const (
	NamePlaceholder  = "[NAME]"
	EmailPlaceholder = "[EMAIL]"
)

var (
	emailAddress  = regexp.MustCompile(`[\w.+-]+@[\w-]+(\.[\w-]+)+`)
	word          = regexp.MustCompile(`\p{L}[\p{L}'’-]*`)
	greetedName   = regexp.MustCompile(`^(?i:hi|hello|hey|hiya|dear|morning)\s+(\p{Lu}[\p{L}'-]+)(?:\s+(\p{Lu}[\p{L}'-]+))?`)
	signatureName = regexp.MustCompile(`^\p{Lu}[\p{L}'-]+(\s+\p{Lu}[\p{L}'-]+){0,2}$`)
)

// Redactor replaces personal names and addresses before text leaves the process
type Redactor struct {
	names map[string]bool
}

// NewRedactor creates a redactor that already knows the given names
func NewRedactor(known ...string) *Redactor {
	r := &Redactor{names: map[string]bool{}}
	for _, n := range known {
		r.add(n)
	}
	return r
}

func (r *Redactor) add(name string) {
	for _, part := range strings.Fields(name) {
		part = strings.Trim(part, ",.;:\"'()")
		if len([]rune(part)) < 2 {
			continue
		}
		if first := []rune(part)[0]; !unicode.IsUpper(first) {
			continue
		}
		r.names[part] = true
	}
}

// Learn collects names addressed in greetings and signed below closings
func (r *Redactor) Learn(text string) {
	lines := nonEmptyLines(text)
	if len(lines) == 0 {
		return
	}
	if m := greetedName.FindStringSubmatch(lines[0]); m != nil {
		r.add(m[1])
		r.add(m[2])
	}
	for i := max(0, len(lines)-4); i < len(lines)-1; i++ {
		if matchClosing(lines[i]) != "" && signatureName.MatchString(lines[i+1]) {
			r.add(lines[i+1])
		}
	}
}

// Redact replaces known names and email addresses
func (r *Redactor) Redact(text string) string {
	text = emailAddress.ReplaceAllString(text, EmailPlaceholder)
	if len(r.names) == 0 {
		return text
	}
	return word.ReplaceAllStringFunc(text, func(w string) string {
		base := strings.TrimSuffix(strings.TrimSuffix(w, "'s"), "’s")
		if r.names[base] {
			return NamePlaceholder + w[len(base):]
		}
		return w
	})
}
