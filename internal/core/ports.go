package core

import (
	"context"
	"time"
)

// GenerateOptions tunes a single model call
type GenerateOptions struct {
	MaxTokens   int
	Temperature float32
	JSON        bool
	System      string
}

// LLMClient defines the interface for interacting with LLM services
type LLMClient interface {
	// Generate sends the prompt to the model and returns its text output
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// Model returns the resolved model name
	Model() string
}

// ModelCall is one logical model request and the parser for its output
type ModelCall struct {
	Stage   string
	Prompt  string
	Options GenerateOptions
	// Parse validates the raw output; a returned JSONContractError makes the call retryable once
	Parse func(raw string) error
}

// ModelInvoker runs model calls under the truncation, timeout and retry policy
type ModelInvoker interface {
	Invoke(ctx context.Context, call ModelCall) error
	Model() string
}

// Embedder produces unit-normalized vectors for one encoding axis
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// CandidateQuery filters the candidate fetch of the retrieval service
type CandidateQuery struct {
	UserID       string
	Relationship string
	Recipient    string
	From         time.Time
	To           time.Time
	ExcludeIDs   []string
	Limit        int
}

// EmailRepository gives access to the user's stored correspondence
type EmailRepository interface {
	// FetchCandidates returns emails with both vectors, most recent first
	FetchCandidates(ctx context.Context, q CandidateQuery) ([]StoredEmail, error)

	// CountRepliesTo counts replies the user sent to an address
	CountRepliesTo(ctx context.Context, userID, address string) (int, error)

	// LoadReplyCorpus returns reply bodies of the user for a relationship, or all for aggregate
	LoadReplyCorpus(ctx context.Context, userID, relationship string, limit int) ([]string, error)

	// ListUnembedded returns emails that still lack vectors
	ListUnembedded(ctx context.Context, userID string, limit int) ([]StoredEmail, error)

	// SaveVectors stores both vectors of an email
	SaveVectors(ctx context.Context, emailID string, semantic, style []float32) error

	// LoadStyleVectors returns (id, style vector) pairs for a relationship
	LoadStyleVectors(ctx context.Context, userID, relationship string) (map[string][]float32, error)
}

// AccountRepository resolves accounts and relationships
type AccountRepository interface {
	GetAccount(ctx context.Context, accountID string) (*Account, error)
	GetAccountByEmail(ctx context.Context, address string) (*Account, error)
	GetRelationship(ctx context.Context, userID, address string) (*Relationship, error)
}

// ClusterRepository persists style clusters and their membership
type ClusterRepository interface {
	LoadClusters(ctx context.Context, userID, relationship string) ([]StyleCluster, error)
	SaveClusters(ctx context.Context, userID, relationship string, clusters []StyleCluster) error
}

// ProfileRepository stores JSON profile blobs per (user, target)
type ProfileRepository interface {
	// Get retrieves a profile entry, returning ErrNotFound on a miss
	Get(ctx context.Context, userID, target string) (*ProfileEntry, error)

	// Set stores a profile entry
	Set(ctx context.Context, entry *ProfileEntry) error

	// Delete removes a profile entry
	Delete(ctx context.Context, userID, target string) error
}

// DraftRepository persists generated drafts
type DraftRepository interface {
	SaveDraft(ctx context.Context, draft *Draft) error
}

// Locker is a named, non-reentrant mutual exclusion service shared across processes
type Locker interface {
	// Acquire tries to take the lock, waiting up to wait. It returns false when the lock stayed held.
	Acquire(ctx context.Context, key int64, wait time.Duration) (bool, error)

	// Release frees a lock taken by Acquire
	Release(ctx context.Context, key int64) error
}
