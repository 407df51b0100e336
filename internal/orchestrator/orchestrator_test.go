package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mikey/llm-reply-drafter/internal/core"
	"github.com/mikey/llm-reply-drafter/internal/metrics"
	"github.com/mikey/llm-reply-drafter/internal/normalizer"
	"github.com/mikey/llm-reply-drafter/internal/retrieval"
	"github.com/mikey/llm-reply-drafter/internal/spamgate"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const lunchEmail = "From: Anna Smith <anna@example.com>\r\n" +
	"To: mike@example.com, Bob <bob@example.com>\r\n" +
	"Cc: carol@example.com, Mike@Example.com\r\n" +
	"Subject: Lunch on Friday?\r\n" +
	"Message-ID: <abc@example.com>\r\n" +
	"Date: Mon, 02 Mar 2026 10:00:00 +0000\r\n" +
	"\r\n" +
	"Hi Mike,\r\n" +
	"\r\n" +
	"Are you free for lunch on Friday?\r\n" +
	"\r\n" +
	"Anna\r\n"

type scriptedInvoker struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	calls   []core.ModelCall
}

func (s *scriptedInvoker) Invoke(_ context.Context, call core.ModelCall) error {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
	if err := s.errs[call.Stage]; err != nil {
		return err
	}
	return call.Parse(s.replies[call.Stage])
}

func (s *scriptedInvoker) Model() string { return "test-model" }

func (s *scriptedInvoker) stages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.Stage
	}
	return out
}

type fakeAccounts struct {
	accounts      map[string]*core.Account
	relationships map[string]*core.Relationship
}

func (f *fakeAccounts) GetAccount(_ context.Context, id string) (*core.Account, error) {
	if a, ok := f.accounts[id]; ok {
		return a, nil
	}
	return nil, core.ErrNotFound
}

func (f *fakeAccounts) GetAccountByEmail(_ context.Context, address string) (*core.Account, error) {
	for _, a := range f.accounts {
		if a.Email == address {
			return a, nil
		}
	}
	return nil, core.ErrNotFound
}

func (f *fakeAccounts) GetRelationship(_ context.Context, _, address string) (*core.Relationship, error) {
	if r, ok := f.relationships[address]; ok {
		return r, nil
	}
	return nil, core.ErrNotFound
}

type fakeSpam struct {
	verdict *core.SpamVerdict
	inputs  []spamgate.Input
}

func (f *fakeSpam) Check(_ context.Context, in spamgate.Input) (*core.SpamVerdict, error) {
	f.inputs = append(f.inputs, in)
	return f.verdict, nil
}

type fakeEncoder struct{}

func (fakeEncoder) Encode(context.Context, string) ([]float32, []float32, error) {
	return []float32{1, 0}, []float32{0, 1}, nil
}

type fakeSearcher struct {
	mu       sync.Mutex
	queries  []retrieval.Query
	examples []core.Example
}

func (f *fakeSearcher) Search(_ context.Context, q retrieval.Query) (*retrieval.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return &retrieval.Result{Examples: f.examples}, nil
}

type fakePatterns struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (f *fakePatterns) Patterns(_ context.Context, _, relationship string, _ ...string) (*core.WritingPatterns, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, relationship)
	if f.err != nil {
		return nil, f.err
	}
	return &core.WritingPatterns{
		Relationship: relationship,
		EmailCount:   12,
		Valedictions: map[string]int{"cheers": 80, "none": 20},
		UniqueExpressions: []core.UniqueExpression{
			{Phrase: "sounds grand", Context: "agreeing", OccurrenceRate: 0.4},
		},
	}, nil
}

type fakeStyles struct{}

func (fakeStyles) Profile(_ context.Context, _, relationship string) (*core.StyleProfile, error) {
	return &core.StyleProfile{
		Relationship: relationship,
		Dominant:     "casual",
		Distribution: map[string]float64{"casual": 0.75, "neutral": 0.25},
	}, nil
}

type fakeDrafts struct {
	saved []*core.Draft
}

func (f *fakeDrafts) SaveDraft(_ context.Context, d *core.Draft) error {
	f.saved = append(f.saved, d)
	return nil
}

type fixture struct {
	orch     *Orchestrator
	invoker  *scriptedInvoker
	spam     *fakeSpam
	searcher *fakeSearcher
	patterns *fakePatterns
	drafts   *fakeDrafts
	metrics  *metrics.Metrics
}

func newFixture(classify, reply string) *fixture {
	f := &fixture{
		invoker: &scriptedInvoker{
			replies: map[string]string{stageClassify: classify, stageResponse: reply},
			errs:    map[string]error{},
		},
		spam: &fakeSpam{verdict: &core.SpamVerdict{Indicators: []string{}, SenderResponseCount: 1}},
		searcher: &fakeSearcher{examples: []core.Example{{
			ID:       "e1",
			Text:     "Sounds grand, see you there.\n\nCheers",
			Metadata: core.ExampleMetadata{Relationship: "colleague", IsDirectCorrespondence: true},
		}}},
		patterns: &fakePatterns{},
		drafts:   &fakeDrafts{},
		metrics:  metrics.NewNop(),
	}
	accounts := &fakeAccounts{
		accounts: map[string]*core.Account{
			"acc-1": {
				ID:           "acc-1",
				UserID:       "user-1",
				Email:        "mike@example.com",
				Aliases:      []string{"m.austin@example.com"},
				DisplayNames: []string{"Mike Austin"},
			},
		},
		relationships: map[string]*core.Relationship{
			"anna@example.com": {Type: "colleague", Confidence: 0.9},
		},
	}
	f.orch = New(Deps{
		Parser:   normalizer.New(zap.NewNop()),
		Accounts: accounts,
		Spam:     f.spam,
		Invoker:  f.invoker,
		Encoder:  fakeEncoder{},
		Searcher: f.searcher,
		Patterns: f.patterns,
		Styles:   fakeStyles{},
		Drafts:   f.drafts,
	}, Options{TopN: 3}, f.metrics, zap.NewNop())
	f.orch.now = func() time.Time { return time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC) }
	return f
}

func TestSilentActionSkipsResponseGeneration(t *testing.T) {
	f := newFixture(`{"recommendedAction":"silent-fyi-only","keyConsiderations":[]}`, "")

	res := f.orch.Process(context.Background(), "acc-1", []byte(lunchEmail))

	require.True(t, res.Success, res.Error)
	assert.Equal(t, core.ActionSilentFYIOnly, res.Draft.Action)
	assert.Empty(t, res.Draft.Body.Text)
	assert.Empty(t, res.Draft.Body.HTML)
	assert.Empty(t, res.Draft.To)
	assert.Equal(t, []string{stageClassify}, f.invoker.stages())
	assert.Empty(t, f.patterns.keys)
	assert.Empty(t, f.searcher.queries)
	assert.Len(t, f.drafts.saved, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DraftsTotal.WithLabelValues("silent")))
}

func TestReplyAllDraft(t *testing.T) {
	f := newFixture(
		`{"recommendedAction":"reply-all","keyConsiderations":["confirm Friday"]}`,
		"```json\n{\"message\":\"Friday works for me.\\n\\nMike\"}\n```",
	)

	res := f.orch.Process(context.Background(), "acc-1", []byte(lunchEmail))
	require.True(t, res.Success, res.Error)
	d := res.Draft

	assert.Equal(t, core.ActionReplyAll, d.Action)
	assert.Equal(t, []string{"anna@example.com", "bob@example.com"}, d.To)
	assert.Equal(t, []string{"carol@example.com"}, d.Cc)
	assert.Equal(t, "Re: Lunch on Friday?", d.Subject)
	assert.Equal(t, "<abc@example.com>", d.InReplyTo)
	assert.Equal(t, []string{"<abc@example.com>"}, d.References)
	assert.True(t, strings.HasPrefix(d.Body.Text, "Friday works for me.\n\nOn Mon, Mar 2, 2026 at 10:00 AM, anna@example.com wrote:\n"), d.Body.Text)
	assert.Contains(t, d.Body.Text, "> Are you free for lunch on Friday?")
	assert.Empty(t, d.Body.HTML)

	assert.Equal(t, 1, d.Metadata.ExampleCount)
	assert.Equal(t, []string{"confirm Friday"}, d.Metadata.KeyConsiderations)
	assert.Equal(t, core.Relationship{Type: "colleague", Confidence: 0.9}, d.Metadata.Relationship)
	assert.Equal(t, "test-model", d.Metadata.ModelUsed)
	assert.False(t, d.Metadata.GeneratedAt.IsZero())

	assert.Equal(t, []string{stageClassify, stageResponse}, f.invoker.stages())
	prompt := f.invoker.calls[1].Prompt
	assert.Contains(t, prompt, "confirm Friday")
	assert.Contains(t, prompt, "Sounds grand, see you there.")
	assert.Contains(t, prompt, "mostly casual")
	assert.Contains(t, prompt, `"cheers" 80%`)

	assert.Equal(t, []string{"colleague"}, f.patterns.keys)
	require.Len(t, f.searcher.queries, 1)
	q := f.searcher.queries[0]
	assert.Equal(t, "colleague", q.Relationship)
	assert.Equal(t, "anna@example.com", q.Sender)
	assert.Equal(t, 3, q.TopN)
	assert.True(t, q.From.IsZero())

	assert.Same(t, d, f.drafts.saved[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DraftsTotal.WithLabelValues("reply")))
}

func TestReplySenderWithHTMLOriginal(t *testing.T) {
	raw := "From: anna@example.com\r\n" +
		"To: mike@example.com\r\n" +
		"Subject: Re: Report\r\n" +
		"Message-ID: <m2@example.com>\r\n" +
		"References: <m1@example.com>\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>Is the report <b>done</b>?</p>\r\n"
	f := newFixture(`{"recommendedAction":"reply-sender","keyConsiderations":[]}`, `{"message":"Yes, sending it <now>."}`)

	res := f.orch.Process(context.Background(), "acc-1", []byte(raw))
	require.True(t, res.Success, res.Error)

	d := res.Draft
	assert.Equal(t, []string{"anna@example.com"}, d.To)
	assert.Empty(t, d.Cc)
	assert.Equal(t, "Re: Report", d.Subject)
	assert.Equal(t, []string{"<m1@example.com>", "<m2@example.com>"}, d.References)
	assert.Contains(t, d.Body.HTML, "<p>Yes, sending it &lt;now&gt;.</p>")
	assert.Contains(t, d.Body.HTML, "<blockquote")
	assert.Contains(t, d.Body.HTML, "<b>done</b>")
}

func TestSpamVerdictProducesSilentSpamDraft(t *testing.T) {
	f := newFixture("", "")
	f.spam.verdict = &core.SpamVerdict{IsSpam: true, Indicators: []string{"urgency"}}

	res := f.orch.Process(context.Background(), "acc-1", []byte(lunchEmail))

	require.True(t, res.Success)
	assert.Equal(t, core.ActionSilentSpam, res.Draft.Action)
	assert.Empty(t, res.Draft.Body.Text)
	assert.True(t, res.Draft.Metadata.SpamVerdict.IsSpam)
	assert.Empty(t, f.invoker.stages())

	require.Len(t, f.spam.inputs, 1)
	in := f.spam.inputs[0]
	assert.Equal(t, "user-1", in.UserID)
	assert.Equal(t, "anna@example.com", in.Sender)
	assert.Equal(t, []string{"Mike Austin"}, in.DisplayNames)
}

func TestUnknownSenderUsesAggregatePatterns(t *testing.T) {
	raw := strings.Replace(lunchEmail, "anna@example.com", "stranger@example.org", 1)
	f := newFixture(`{"recommendedAction":"reply-sender","keyConsiderations":[]}`, `{"message":"Thanks, noted."}`)

	res := f.orch.Process(context.Background(), "acc-1", []byte(raw))
	require.True(t, res.Success, res.Error)

	assert.Equal(t, UnknownRelationship, res.Draft.Metadata.Relationship.Type)
	assert.Zero(t, res.Draft.Metadata.Relationship.Confidence)
	assert.Equal(t, []string{core.AggregateRelationship}, f.patterns.keys)
	require.Len(t, f.searcher.queries, 1)
	assert.Empty(t, f.searcher.queries[0].Relationship)
}

func TestLookbackBoundsExampleWindow(t *testing.T) {
	f := newFixture(`{"recommendedAction":"reply-sender","keyConsiderations":[]}`, `{"message":"Sure."}`)
	f.orch.opts.Lookback = 24 * time.Hour

	res := f.orch.Process(context.Background(), "acc-1", []byte(lunchEmail))
	require.True(t, res.Success, res.Error)

	q := f.searcher.queries[0]
	assert.Equal(t, f.orch.now(), q.To)
	assert.Equal(t, f.orch.now().Add(-24*time.Hour), q.From)
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		name      string
		accountID string
		raw       string
		errs      map[string]error
		classify  string
		reply     string
		want      core.ErrorCode
	}{
		{
			name:      "unknown account",
			accountID: "missing",
			raw:       lunchEmail,
			want:      core.CodeAccountNotFound,
		},
		{
			name:      "malformed message",
			accountID: "acc-1",
			raw:       "garbage without header separator\r\n\r\nbody",
			want:      core.CodeParseError,
		},
		{
			name:      "classification timeout",
			accountID: "acc-1",
			raw:       lunchEmail,
			errs:      map[string]error{stageClassify: &core.TimeoutError{Stage: stageClassify, Timeout: time.Second}},
			want:      core.CodeLLMTimeout,
		},
		{
			name:      "response timeout",
			accountID: "acc-1",
			raw:       lunchEmail,
			classify:  `{"recommendedAction":"reply-sender","keyConsiderations":[]}`,
			errs:      map[string]error{stageResponse: &core.TimeoutError{Stage: stageResponse, Timeout: time.Second}},
			want:      core.CodeLLMTimeout,
		},
		{
			name:      "unknown action",
			accountID: "acc-1",
			raw:       lunchEmail,
			classify:  `{"recommendedAction":"reply-maybe","keyConsiderations":[]}`,
			want:      core.CodeUnknown,
		},
		{
			name:      "empty message",
			accountID: "acc-1",
			raw:       lunchEmail,
			classify:  `{"recommendedAction":"reply-sender","keyConsiderations":[]}`,
			reply:     `{"message":"   "}`,
			want:      core.CodeUnknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.classify, tt.reply)
			if tt.errs != nil {
				f.invoker.errs = tt.errs
			}

			res := f.orch.Process(context.Background(), tt.accountID, []byte(tt.raw))

			assert.False(t, res.Success)
			assert.Nil(t, res.Draft)
			assert.NotEmpty(t, res.Error)
			assert.Equal(t, tt.want, res.ErrorCode)
			assert.Empty(t, f.drafts.saved)
			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DraftsTotal.WithLabelValues("failed")))
		})
	}
}

func TestContractViolationIsTyped(t *testing.T) {
	f := newFixture(`{"recommendedAction":"reply-maybe","keyConsiderations":[]}`, "")

	_, err := f.orch.Draft(context.Background(), "acc-1", []byte(lunchEmail))

	var ce *core.JSONContractError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "classification", ce.Contract)
}

func TestPatternFailureFailsWholeEmail(t *testing.T) {
	f := newFixture(`{"recommendedAction":"reply-sender","keyConsiderations":[]}`, `{"message":"ok"}`)
	f.patterns.err = errors.New("store offline")

	d, err := f.orch.Draft(context.Background(), "acc-1", []byte(lunchEmail))

	require.Error(t, err)
	assert.Nil(t, d)
	assert.Contains(t, err.Error(), "writing patterns")
	assert.Equal(t, []string{stageClassify}, f.invoker.stages())
	assert.Empty(t, f.drafts.saved)
}

func TestClassifyPromptCarriesStructure(t *testing.T) {
	f := newFixture(`{"recommendedAction":"silent-todo","keyConsiderations":[]}`, "")

	_, err := f.orch.Draft(context.Background(), "acc-1", []byte(lunchEmail))
	require.NoError(t, err)

	prompt := f.invoker.calls[0].Prompt
	assert.Contains(t, prompt, "User names: Mike Austin")
	assert.Contains(t, prompt, "anna@example.com (relationship: colleague)")
	assert.Contains(t, prompt, "Addressed directly: true")
	assert.Contains(t, prompt, "2 in To, 2 in Cc")
	assert.Contains(t, prompt, "prior replies to sender=1")
	assert.Contains(t, prompt, "Are you free for lunch on Friday?")
	assert.True(t, f.invoker.calls[0].Options.JSON)
}
