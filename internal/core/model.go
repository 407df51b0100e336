package core

import (
	"strings"
	"time"
)

// AggregateRelationship is the pattern key used when patterns span every relationship
const AggregateRelationship = "aggregate"

// NormalizedEmail represents a parsed email message
type NormalizedEmail struct {
	MessageID  string
	From       []string
	To         []string
	Cc         []string
	ReplyTo    []string
	References []string
	InReplyTo  string
	Subject    string
	Date       time.Time
	Body       string
	HTMLBody   string
	// SafeBody is the attachment-free text handed to every model call
	SafeBody string
	Headers  map[string][]string
	// Raw is the archived message, never mutated
	Raw []byte
}

// Sender returns the first From address or an empty string
func (e *NormalizedEmail) Sender() string {
	if len(e.From) == 0 {
		return ""
	}
	return e.From[0]
}

// ReplyToAddress returns the first Reply-To address or an empty string
func (e *NormalizedEmail) ReplyToAddress() string {
	if len(e.ReplyTo) == 0 {
		return ""
	}
	return e.ReplyTo[0]
}

// SpamVerdict represents the result of the spam gate
type SpamVerdict struct {
	IsSpam              bool     `json:"isSpam"`
	Indicators          []string `json:"spamIndicators"`
	SenderResponseCount int      `json:"senderResponseCount"`
	Whitelisted         bool     `json:"whitelisted"`
	ModelUsed           string   `json:"modelUsed,omitempty"`
}

// ExampleScores holds the per-axis retrieval scores of an example
type ExampleScores struct {
	Semantic float64 `json:"semantic"`
	Style    float64 `json:"style"`
	Keyword  float64 `json:"keyword,omitempty"`
	Combined float64 `json:"combined"`
	Temporal float64 `json:"temporal"`
}

// ExampleMetadata describes where a retrieved example came from
type ExampleMetadata struct {
	Recipient              string    `json:"recipient"`
	Relationship           string    `json:"relationship"`
	SentAt                 time.Time `json:"sentAt"`
	Subject                string    `json:"subject"`
	IsDirectCorrespondence bool      `json:"isDirectCorrespondence"`
}

// Example is a past email selected as a writing reference
type Example struct {
	ID       string          `json:"id"`
	Text     string          `json:"text"`
	Scores   ExampleScores   `json:"scores"`
	Metadata ExampleMetadata `json:"metadata"`
}

// StoredEmail is a past email row with its precomputed vectors
type StoredEmail struct {
	ID             string
	UserID         string
	Recipient      string
	Relationship   string
	Subject        string
	Body           string
	SentAt         time.Time
	SemanticVector []float32
	StyleVector    []float32
}

// StyleCluster is a named group of emails sharing a writing style
type StyleCluster struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Centroid []float32 `json:"centroid"`
	Members  []string  `json:"members"`
	Cohesion float64   `json:"cohesion"`
}

// StyleProfile is the aggregated style of a relationship
type StyleProfile struct {
	Relationship string             `json:"relationship"`
	Dominant     string             `json:"dominant"`
	Distribution map[string]float64 `json:"distribution"`
	Clusters     []StyleCluster     `json:"clusters"`
}

// SentenceStats describes sentence lengths in words
type SentenceStats struct {
	Count       int                `json:"count"`
	Mean        float64            `json:"mean"`
	Median      float64            `json:"median"`
	TrimmedMean float64            `json:"trimmedMean"`
	StdDev      float64            `json:"stdDev"`
	Q1          float64            `json:"q1"`
	Q3          float64            `json:"q3"`
	Histogram   map[string]float64 `json:"histogram"`
}

// NegativePattern is something the user avoids writing
type NegativePattern struct {
	Description string   `json:"description"`
	Confidence  float64  `json:"confidence"`
	Examples    []string `json:"examples,omitempty"`
}

// ResponseTiming summarizes how the user tends to respond
type ResponseTiming struct {
	AverageResponseHours float64 `json:"averageResponseHours"`
	WeekendReplyRate     float64 `json:"weekendReplyRate"`
	PreferredWindow      string  `json:"preferredWindow"`
	Consistency          string  `json:"consistency"`
}

// UniqueExpression is a distinctive phrase of the user
type UniqueExpression struct {
	Phrase         string  `json:"phrase"`
	Context        string  `json:"context"`
	OccurrenceRate float64 `json:"occurrenceRate"`
}

// WritingPatterns is the mined writing profile of a (user, relationship) pair
type WritingPatterns struct {
	UserID             string             `json:"userId"`
	Relationship       string             `json:"relationship"`
	EmailCount         int                `json:"emailCount"`
	Sentences          SentenceStats      `json:"sentences"`
	ParagraphStructure map[string]int     `json:"paragraphStructure"`
	OpeningLines       map[string]int     `json:"openingLines"`
	Valedictions       map[string]int     `json:"valedictions"`
	NegativePatterns   []NegativePattern  `json:"negativePatterns"`
	ResponseTiming     ResponseTiming     `json:"responseTiming"`
	UniqueExpressions  []UniqueExpression `json:"uniqueExpressions"`
	LastCalculated     time.Time          `json:"lastCalculated"`
}

// ProfileEntry is a cached JSON blob keyed by (user, target)
type ProfileEntry struct {
	UserID    string
	Target    string
	Data      []byte
	UpdatedAt time.Time
}

const (
	// PatternsTargetPrefix namespaces writing pattern entries, one per relationship
	PatternsTargetPrefix = "patterns:"
	// KeywordTarget holds the fitted BM25 state of a user
	KeywordTarget = "bm25"
)

// PinnedTarget reports whether entries of target are only removed by an explicit Delete.
// Repositories with an expiry must never drop them on their own.
func PinnedTarget(target string) bool {
	return target == KeywordTarget || strings.HasPrefix(target, PatternsTargetPrefix)
}

// Account is the mailbox a draft is produced for
type Account struct {
	ID           string
	UserID       string
	Email        string
	Aliases      []string
	DisplayNames []string
	Provider     string
}

// Addresses returns the primary address followed by aliases
func (a *Account) Addresses() []string {
	out := make([]string, 0, 1+len(a.Aliases))
	if a.Email != "" {
		out = append(out, a.Email)
	}
	return append(out, a.Aliases...)
}

// Relationship classifies how the user relates to a correspondent
type Relationship struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// DraftBody carries the generated reply
type DraftBody struct {
	Text string `json:"text"`
	HTML string `json:"html,omitempty"`
}

// DraftMetadata is the audit trail attached to a draft
type DraftMetadata struct {
	SpamVerdict       SpamVerdict  `json:"spamVerdict"`
	Relationship      Relationship `json:"relationship"`
	ExampleCount      int          `json:"exampleCount"`
	KeyConsiderations []string     `json:"keyConsiderations,omitempty"`
	GeneratedAt       time.Time    `json:"generatedAt"`
	ModelUsed         string       `json:"modelUsed,omitempty"`
}

// Draft is the outcome for one incoming email. It is built once and not modified afterwards.
type Draft struct {
	ID                string        `json:"id"`
	AccountID         string        `json:"accountId"`
	OriginalMessageID string        `json:"originalMessageId"`
	To                []string      `json:"to"`
	Cc                []string      `json:"cc"`
	Subject           string        `json:"subject"`
	Body              DraftBody     `json:"body"`
	InReplyTo         string        `json:"inReplyTo,omitempty"`
	References        []string      `json:"references,omitempty"`
	Action            Action        `json:"action"`
	Metadata          DraftMetadata `json:"metadata"`
}

// IsSilent reports whether the draft carries no reply body. Drafts with an unknown action have none.
func (d *Draft) IsSilent() bool {
	silent, err := d.Action.IsSilent()
	return silent || err != nil
}

// DraftResult is the envelope handed back to the delivery layer
type DraftResult struct {
	Success   bool      `json:"success"`
	Draft     *Draft    `json:"draft,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorCode ErrorCode `json:"errorCode,omitempty"`
}
