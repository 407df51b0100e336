package embedding

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/goccy/go-json"
)

// BM25 defaults
const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

// SparseEntry is one (index, score) pair of a sparse vector
type SparseEntry struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// BM25State is the fitted, serializable state of a BM25 encoder
type BM25State struct {
	Vocabulary map[string]int `json:"vocabulary"`
	IDF        []float64      `json:"idf"`
	AvgDocLen  float64        `json:"avgDocLen"`
	DocCount   int            `json:"docCount"`
	K1         float64        `json:"k1"`
	B          float64        `json:"b"`
}

// BM25 is a sparse keyword encoder fit once per user corpus
type BM25 struct {
	state BM25State
}

// NewBM25 creates an unfitted encoder
func NewBM25(k1, b float64) *BM25 {
	return &BM25{state: BM25State{Vocabulary: map[string]int{}, K1: k1, B: b}}
}

// Tokenize lowercases text, strips punctuation and splits on whitespace
func Tokenize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, text)
	return strings.Fields(cleaned)
}

// Fit builds the vocabulary and idf table from a corpus
func (m *BM25) Fit(docs []string) {
	vocab := map[string]int{}
	df := []int{}
	total := 0

	for _, doc := range docs {
		tokens := Tokenize(doc)
		total += len(tokens)
		seen := map[string]bool{}
		for _, tok := range tokens {
			idx, ok := vocab[tok]
			if !ok {
				idx = len(df)
				vocab[tok] = idx
				df = append(df, 0)
			}
			if !seen[tok] {
				seen[tok] = true
				df[idx]++
			}
		}
	}

	n := float64(len(docs))
	idf := make([]float64, len(df))
	for i, d := range df {
		idf[i] = math.Log((n-float64(d)+0.5)/(float64(d)+0.5) + 1)
	}

	m.state.Vocabulary = vocab
	m.state.IDF = idf
	m.state.DocCount = len(docs)
	m.state.AvgDocLen = 0
	if len(docs) > 0 {
		m.state.AvgDocLen = float64(total) / n
	}
}

// TermScore is the BM25 weight of one term
func TermScore(idf float64, tf, docLen int, avgDocLen, k1, b float64) float64 {
	if tf <= 0 || avgDocLen <= 0 {
		return 0
	}
	f := float64(tf)
	return idf * f * (k1 + 1) / (f + k1*(1-b+b*(float64(docLen)/avgDocLen)))
}

// Encode returns the sparse vector of text, sorted by index. Terms outside the vocabulary are ignored.
func (m *BM25) Encode(text string) []SparseEntry {
	tokens := Tokenize(text)
	if len(tokens) == 0 || m.state.AvgDocLen == 0 {
		return []SparseEntry{}
	}

	tf := map[int]int{}
	for _, tok := range tokens {
		if idx, ok := m.state.Vocabulary[tok]; ok {
			tf[idx]++
		}
	}

	out := make([]SparseEntry, 0, len(tf))
	for idx, count := range tf {
		out = append(out, SparseEntry{
			Index: idx,
			Score: TermScore(m.state.IDF[idx], count, len(tokens), m.state.AvgDocLen, m.state.K1, m.state.B),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// VocabularySize returns the number of fitted terms
func (m *BM25) VocabularySize() int {
	return len(m.state.Vocabulary)
}

// MarshalState serializes the fitted state
func (m *BM25) MarshalState() ([]byte, error) {
	return json.Marshal(m.state)
}

// LoadBM25 restores an encoder from serialized state
func LoadBM25(data []byte) (*BM25, error) {
	var state BM25State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode bm25 state: %w", err)
	}
	if len(state.IDF) != len(state.Vocabulary) {
		return nil, fmt.Errorf("corrupt bm25 state: %d idf entries for %d terms", len(state.IDF), len(state.Vocabulary))
	}
	for term, idx := range state.Vocabulary {
		if idx < 0 || idx >= len(state.IDF) {
			return nil, fmt.Errorf("corrupt bm25 state: term %q has index %d", term, idx)
		}
	}
	if state.Vocabulary == nil {
		state.Vocabulary = map[string]int{}
	}
	return &BM25{state: state}, nil
}

// SparseCosine is the cosine similarity of two index-sorted sparse vectors
func SparseCosine(a, b []SparseEntry) float64 {
	var dot, na, nb float64
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].Index == b[j].Index:
			dot += a[i].Score * b[j].Score
			i++
			j++
		case a[i].Index < b[j].Index:
			i++
		default:
			j++
		}
	}
	for _, e := range a {
		na += e.Score * e.Score
	}
	for _, e := range b {
		nb += e.Score * e.Score
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
