package patterns

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/mikey/llm-reply-drafter/internal/core"
)

// Sentence length buckets
const (
	BucketShort  = "short"
	BucketMedium = "medium"
	BucketLong   = "long"
)

// Paragraph structure classes
const (
	StructureSingleLine     = "single-line"
	StructureBriefMultiLine = "brief-multi-line"
	StructureMultiParagraph = "multi-paragraph"
	StructureMixed          = "mixed"
)

// Sentinels for emails without an opening or closing
const (
	NoOpening     = "right to the point"
	NoValediction = "none"
)

// Thresholds configures the deterministic statistics
type Thresholds struct {
	// Short sentences have fewer words than Short, long ones more than Long
	Short           int
	Long            int
	TrimmedFraction float64
}

// DefaultThresholds are the usual sentence-length boundaries
var DefaultThresholds = Thresholds{Short: 10, Long: 25, TrimmedFraction: 0.05}

var (
	sentenceEnd = regexp.MustCompile(`[.!?]+(\s+|$)`)
	greeting    = regexp.MustCompile(`(?i)^(hi|hello|hey|hiya|dear|greetings|good (morning|afternoon|evening)|morning|afternoon)\b`)
	blankLine   = regexp.MustCompile(`\n\s*\n`)
)

// closings are matched against the start of the last lines, longest first
var closings = []string{
	"many thanks", "thanks again", "thanks so much", "thank you", "thanks", "thx", "ta",
	"best regards", "kind regards", "warm regards", "warmest regards", "regards",
	"all the best", "best wishes", "best",
	"talk soon", "speak soon", "chat soon", "see you soon",
	"cheers", "sincerely", "yours sincerely", "yours truly", "take care", "cordially",
}

func init() {
	sort.SliceStable(closings, func(i, j int) bool { return len(closings[i]) > len(closings[j]) })
}

// SplitSentences splits text on sentence-ending punctuation and line breaks
func SplitSentences(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		for _, s := range sentenceEnd.Split(line, -1) {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// SentenceLengths returns the word count of every sentence of every text
func SentenceLengths(texts []string) []int {
	var out []int
	for _, t := range texts {
		for _, s := range SplitSentences(t) {
			out = append(out, len(strings.Fields(s)))
		}
	}
	return out
}

// SentenceStatistics summarizes sentence lengths in words
func SentenceStatistics(lengths []int, th Thresholds) core.SentenceStats {
	stats := core.SentenceStats{
		Count:     len(lengths),
		Histogram: map[string]float64{BucketShort: 0, BucketMedium: 0, BucketLong: 0},
	}
	if len(lengths) == 0 {
		return stats
	}

	sorted := make([]float64, len(lengths))
	for i, l := range lengths {
		sorted[i] = float64(l)
	}
	sort.Float64s(sorted)

	n := float64(len(sorted))
	sum := 0.0
	for _, x := range sorted {
		sum += x
	}
	stats.Mean = sum / n

	variance := 0.0
	for _, x := range sorted {
		variance += (x - stats.Mean) * (x - stats.Mean)
	}
	stats.StdDev = math.Sqrt(variance / n)

	stats.Median = quantile(sorted, 0.5)
	stats.Q1 = quantile(sorted, 0.25)
	stats.Q3 = quantile(sorted, 0.75)
	stats.TrimmedMean = trimmedMean(sorted, th.TrimmedFraction)

	for _, l := range lengths {
		switch {
		case l < th.Short:
			stats.Histogram[BucketShort]++
		case l > th.Long:
			stats.Histogram[BucketLong]++
		default:
			stats.Histogram[BucketMedium]++
		}
	}
	for k, v := range stats.Histogram {
		stats.Histogram[k] = v / n
	}
	return stats
}

// quantile interpolates linearly between the closest ranks of sorted data
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// trimmedMean drops floor(n*fraction) values from each end before averaging
func trimmedMean(sorted []float64, fraction float64) float64 {
	cut := int(math.Floor(float64(len(sorted)) * fraction))
	kept := sorted[cut : len(sorted)-cut]
	if len(kept) == 0 {
		kept = sorted
	}
	sum := 0.0
	for _, x := range kept {
		sum += x
	}
	return sum / float64(len(kept))
}

func nonEmptyLines(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// Opening returns the greeting of an email up to its first sentence end, or NoOpening
func Opening(text string) string {
	lines := nonEmptyLines(text)
	if len(lines) == 0 || !greeting.MatchString(lines[0]) {
		return NoOpening
	}
	first := lines[0]
	if loc := strings.IndexAny(first, ".!?"); loc >= 0 {
		first = first[:loc+1]
	}
	return first
}

// Valediction returns the closing phrase found in the last few lines, or NoValediction
func Valediction(text string) string {
	lines := nonEmptyLines(text)
	start := max(0, len(lines)-4)
	for i := len(lines) - 1; i >= start; i-- {
		if v := matchClosing(lines[i]); v != "" {
			return v
		}
	}
	return NoValediction
}

func matchClosing(line string) string {
	l := strings.ToLower(strings.TrimRight(line, " ,.!-"))
	if len(strings.Fields(l)) > 5 {
		return ""
	}
	for _, c := range closings {
		if l == c || strings.HasPrefix(l, c+" ") || strings.HasPrefix(l, c+",") {
			return c
		}
	}
	return ""
}

// ParagraphStructure classifies the layout of one email. Greeting and closing lines are not counted.
func ParagraphStructure(text string) string {
	var blocks [][]string
	for _, b := range blankLine.Split(strings.TrimSpace(text), -1) {
		if lines := nonEmptyLines(b); len(lines) > 0 {
			blocks = append(blocks, lines)
		}
	}

	if len(blocks) > 0 && greeting.MatchString(blocks[0][0]) && len(strings.Fields(blocks[0][0])) <= 4 {
		blocks[0] = blocks[0][1:]
	}
	// a closing and the signature below it end the content
	scanned := 0
closing:
	for bi := len(blocks) - 1; bi >= 0; bi-- {
		for j := len(blocks[bi]) - 1; j >= 0; j-- {
			if scanned == 4 {
				break closing
			}
			scanned++
			if matchClosing(blocks[bi][j]) != "" {
				blocks[bi] = blocks[bi][:j]
				blocks = blocks[:bi+1]
				break closing
			}
		}
	}

	var content [][]string
	for _, b := range blocks {
		if len(b) > 0 {
			content = append(content, b)
		}
	}

	switch len(content) {
	case 0:
		return StructureSingleLine
	case 1:
		b := content[0]
		if len(b) == 1 && len(SplitSentences(b[0])) <= 2 {
			return StructureSingleLine
		}
		return StructureBriefMultiLine
	}
	for _, b := range content {
		if len(SplitSentences(strings.Join(b, "\n"))) < 2 {
			return StructureMixed
		}
	}
	return StructureMultiParagraph
}

// Percentages converts counts to integer percentages summing to exactly 100.
// The rounding remainder goes to the most frequent entry.
func Percentages(counts map[string]int) map[string]int {
	total := 0
	for _, c := range counts {
		total += c
	}
	out := make(map[string]int, len(counts))
	if total == 0 {
		return out
	}

	sum, top := 0, ""
	for k, c := range counts {
		p := c * 100 / total
		out[k] = p
		sum += p
		if top == "" || c > counts[top] || c == counts[top] && k < top {
			top = k
		}
	}
	out[top] += 100 - sum
	return out
}

// Histograms counts paragraph structures, openings and valedictions over a corpus
func Histograms(texts []string) (paragraphs, openings, valedictions map[string]int) {
	p, o, v := map[string]int{}, map[string]int{}, map[string]int{}
	for _, t := range texts {
		p[ParagraphStructure(t)]++
		o[Opening(t)]++
		v[Valediction(t)]++
	}
	return Percentages(p), Percentages(o), Percentages(v)
}
