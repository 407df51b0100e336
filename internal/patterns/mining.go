package patterns

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mikey/llm-reply-drafter/internal/contract"
	"github.com/mikey/llm-reply-drafter/internal/core"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize is the number of emails sent per mining call
const DefaultBatchSize = 50

// DefaultConfidenceFloor drops negative patterns the model is unsure about
const DefaultConfidenceFloor = 0.7

// maxConcurrentBatches bounds in-flight mining calls for one corpus
const maxConcurrentBatches = 3

type batchResult struct {
	NegativePatterns  []core.NegativePattern  `json:"negativePatterns"`
	ResponseTiming    core.ResponseTiming     `json:"responseTiming"`
	UniqueExpressions []core.UniqueExpression `json:"uniqueExpressions"`
}

type weightedBatch struct {
	result batchResult
	weight int
}

type qualitative struct {
	negative    []core.NegativePattern
	timing      core.ResponseTiming
	expressions []core.UniqueExpression
}

// mine runs one model call per batch of redacted emails and merges the answers
func mine(ctx context.Context, invoker core.ModelInvoker, relationship string, texts []string, redactor *Redactor, batchSize int, floor float64) (qualitative, error) {
	if len(texts) == 0 {
		return qualitative{}, nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	for _, t := range texts {
		redactor.Learn(t)
	}

	var batches [][]string
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		batch := make([]string, 0, end-start)
		for _, t := range texts[start:end] {
			batch = append(batch, redactor.Redact(t))
		}
		batches = append(batches, batch)
	}

	results := make([]weightedBatch, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentBatches)
	for i, batch := range batches {
		g.Go(func() error {
			var out batchResult
			err := invoker.Invoke(gctx, core.ModelCall{
				Stage:   "patterns",
				Prompt:  buildPrompt(relationship, batch),
				Options: core.GenerateOptions{JSON: true, System: systemPrompt},
				Parse: func(raw string) error {
					out = batchResult{}
					return contract.Decode("patterns", raw, &out, "negativePatterns", "responseTiming", "uniqueExpressions")
				},
			})
			if err != nil {
				return fmt.Errorf("mine batch %d: %w", i+1, err)
			}
			results[i] = weightedBatch{result: out, weight: len(batch)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return qualitative{}, err
	}
	return aggregate(results, floor), nil
}

func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ".!?,;:\"'")
	return strings.Join(strings.Fields(s), " ")
}

// aggregate merges batch answers weighted by the number of emails per batch
func aggregate(batches []weightedBatch, floor float64) qualitative {
	total := 0
	for _, b := range batches {
		total += b.weight
	}
	if total == 0 {
		return qualitative{}
	}
	return qualitative{
		negative:    mergeNegative(batches, floor),
		timing:      mergeTiming(batches, total),
		expressions: mergeExpressions(batches, total),
	}
}

// mergeNegative keeps the most confident instance of each description above the floor
func mergeNegative(batches []weightedBatch, floor float64) []core.NegativePattern {
	best := map[string]core.NegativePattern{}
	for _, b := range batches {
		for _, p := range b.result.NegativePatterns {
			key := normalizeKey(p.Description)
			if key == "" {
				continue
			}
			if cur, ok := best[key]; !ok || p.Confidence > cur.Confidence {
				best[key] = p
			}
		}
	}
	out := make([]core.NegativePattern, 0, len(best))
	for _, p := range best {
		if p.Confidence >= floor {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Description < out[j].Description
	})
	return out
}

// mergeTiming averages numeric fields and takes the weighted mode of categorical ones
func mergeTiming(batches []weightedBatch, total int) core.ResponseTiming {
	var t core.ResponseTiming
	windows, consistency := map[string]int{}, map[string]int{}
	for _, b := range batches {
		w := float64(b.weight) / float64(total)
		t.AverageResponseHours += b.result.ResponseTiming.AverageResponseHours * w
		t.WeekendReplyRate += b.result.ResponseTiming.WeekendReplyRate * w
		if v := strings.TrimSpace(b.result.ResponseTiming.PreferredWindow); v != "" {
			windows[v] += b.weight
		}
		if v := strings.TrimSpace(b.result.ResponseTiming.Consistency); v != "" {
			consistency[v] += b.weight
		}
	}
	t.PreferredWindow = weightedMode(windows)
	t.Consistency = weightedMode(consistency)
	return t
}

func weightedMode(weights map[string]int) string {
	best, bestW := "", 0
	for k, w := range weights {
		if w > bestW || w == bestW && k < best {
			best, bestW = k, w
		}
	}
	return best
}

// mergeExpressions sums weighted occurrence rates per phrase and keeps the dominant context
func mergeExpressions(batches []weightedBatch, total int) []core.UniqueExpression {
	type acc struct {
		phrase   string
		rate     float64
		contexts map[string]int
	}
	byPhrase := map[string]*acc{}
	for _, b := range batches {
		w := float64(b.weight) / float64(total)
		for _, e := range b.result.UniqueExpressions {
			key := normalizeKey(e.Phrase)
			if key == "" {
				continue
			}
			a, ok := byPhrase[key]
			if !ok {
				a = &acc{phrase: strings.TrimSpace(e.Phrase), contexts: map[string]int{}}
				byPhrase[key] = a
			}
			a.rate += e.OccurrenceRate * w
			if c := strings.TrimSpace(e.Context); c != "" {
				a.contexts[c] += b.weight
			}
		}
	}

	out := make([]core.UniqueExpression, 0, len(byPhrase))
	for _, a := range byPhrase {
		out = append(out, core.UniqueExpression{
			Phrase:         a.phrase,
			Context:        weightedMode(a.contexts),
			OccurrenceRate: a.rate,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OccurrenceRate != out[j].OccurrenceRate {
			return out[i].OccurrenceRate > out[j].OccurrenceRate
		}
		return out[i].Phrase < out[j].Phrase
	})
	return out
}
