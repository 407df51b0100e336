package config

import "time"

// LLMConfig represents the configuration for the LLM provider
type LLMConfig struct {
	Provider string
}

// ProviderConfig is the shared shape of every generation provider section
type ProviderConfig struct {
	APIKey         string
	BaseURL        string
	Region         string
	Model          string
	MaxTokens      int
	Temperature    float32
	TopP           float32
	MaxInputTokens int
}

// EmbeddingConfig configures the semantic and style encoders
type EmbeddingConfig struct {
	Provider      string
	SemanticModel string
	StyleModel    string
	Dimensions    int
	MaxTextSize   int
}

// SpamConfig configures the spam gate
type SpamConfig struct {
	// Provider runs the spam detector; it defaults to llm.provider
	Provider           string
	WhitelistedDomains []string
	WhitelistThreshold int
}

// RetrievalConfig configures example selection
type RetrievalConfig struct {
	SemanticWeight float64
	StyleWeight    float64
	KeywordWeight  float64
	CandidateLimit int
	TopN           int
	MinScore       float64
	Lookback       time.Duration
}

// ClusteringConfig configures style clustering
type ClusteringConfig struct {
	K             int
	MaxIterations int
	Seed          int64
}

// PatternsConfig configures the writing pattern analyzer
type PatternsConfig struct {
	BatchSize       int
	ShortThreshold  int
	LongThreshold   int
	TrimmedFraction float64
	ConfidenceFloor float64
	LockWait        time.Duration
	CorpusLimit     int
}

// OrchestratorConfig configures model invocation
type OrchestratorConfig struct {
	Timeout       time.Duration
	MaxRetries    int
	Backoff       time.Duration
	CharsPerToken int
	RateLimit     float64
	RateBurst     int
}

// ServerConfig configures the SMTP intake
type ServerConfig struct {
	FilterType     string
	ListenAddress  string
	Domain         string
	Reinject       bool
	ReinjectAddr   string
	ReinjectPort   int
	ProcessTimeout time.Duration
}

// StoreConfig configures the Postgres store
type StoreConfig struct {
	PostgresDSN string
	MaxConns    int
}

// CacheConfig configures the profile cache backend
type CacheConfig struct {
	Type            string
	SQLitePath      string
	MySQLDSN        string
	TTL             time.Duration
	CleanupInterval time.Duration
}

// LockConfig configures the pattern computation lock
type LockConfig struct {
	Type     string
	RedisURL string
	LeaseTTL time.Duration
}

// GetLLM returns the LLM configuration
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider: c.GetString("llm.provider"),
	}
}

func (c *Config) provider(section string) ProviderConfig {
	model := c.GetString(section + ".model_name")
	if section == "bedrock" {
		model = c.GetString("bedrock.model_id")
	}
	return ProviderConfig{
		APIKey:         c.GetString(section + ".api_key"),
		BaseURL:        c.GetString(section + ".base_url"),
		Region:         c.GetString(section + ".region"),
		Model:          model,
		MaxTokens:      c.GetInt(section + ".max_tokens"),
		Temperature:    float32(c.GetFloat64(section + ".temperature")),
		TopP:           float32(c.GetFloat64(section + ".top_p")),
		MaxInputTokens: c.GetInt(section + ".max_input_tokens"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() ProviderConfig { return c.provider("bedrock") }

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() ProviderConfig { return c.provider("gemini") }

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() ProviderConfig { return c.provider("openai") }

// GetEmbedding returns the embedding configuration
func (c *Config) GetEmbedding() EmbeddingConfig {
	return EmbeddingConfig{
		Provider:      c.GetString("embedding.provider"),
		SemanticModel: c.GetString("embedding.semantic_model"),
		StyleModel:    c.GetString("embedding.style_model"),
		Dimensions:    c.GetInt("embedding.dimensions"),
		MaxTextSize:   c.GetInt("embedding.max_text_size"),
	}
}

// GetSpam returns the spam gate configuration
func (c *Config) GetSpam() SpamConfig {
	provider := c.GetString("spam.provider")
	if provider == "" {
		provider = c.GetString("llm.provider")
	}
	return SpamConfig{
		Provider:           provider,
		WhitelistedDomains: c.GetStringSlice("spam.whitelisted_domains"),
		WhitelistThreshold: c.GetInt("spam.whitelist_threshold"),
	}
}

// GetRetrieval returns the retrieval configuration
func (c *Config) GetRetrieval() RetrievalConfig {
	return RetrievalConfig{
		SemanticWeight: c.GetFloat64("retrieval.semantic_weight"),
		StyleWeight:    c.GetFloat64("retrieval.style_weight"),
		KeywordWeight:  c.GetFloat64("retrieval.keyword_weight"),
		CandidateLimit: c.GetInt("retrieval.candidate_limit"),
		TopN:           c.GetInt("retrieval.top_n"),
		MinScore:       c.GetFloat64("retrieval.min_score"),
		Lookback:       c.v.GetDuration("retrieval.lookback"),
	}
}

// GetClustering returns the clustering configuration
func (c *Config) GetClustering() ClusteringConfig {
	return ClusteringConfig{
		K:             c.GetInt("clustering.k"),
		MaxIterations: c.GetInt("clustering.max_iterations"),
		Seed:          int64(c.GetInt("clustering.seed")),
	}
}

// GetPatterns returns the writing pattern configuration
func (c *Config) GetPatterns() PatternsConfig {
	return PatternsConfig{
		BatchSize:       c.GetInt("patterns.batch_size"),
		ShortThreshold:  c.GetInt("patterns.short_threshold"),
		LongThreshold:   c.GetInt("patterns.long_threshold"),
		TrimmedFraction: c.GetFloat64("patterns.trimmed_fraction"),
		ConfidenceFloor: c.GetFloat64("patterns.confidence_floor"),
		LockWait:        c.v.GetDuration("patterns.lock_wait"),
		CorpusLimit:     c.GetInt("patterns.corpus_limit"),
	}
}

// GetOrchestrator returns the orchestrator configuration
func (c *Config) GetOrchestrator() OrchestratorConfig {
	return OrchestratorConfig{
		Timeout:       c.v.GetDuration("orchestrator.timeout"),
		MaxRetries:    c.GetInt("orchestrator.max_retries"),
		Backoff:       c.v.GetDuration("orchestrator.backoff"),
		CharsPerToken: c.GetInt("orchestrator.chars_per_token"),
		RateLimit:     c.GetFloat64("orchestrator.rate_limit"),
		RateBurst:     c.GetInt("orchestrator.rate_burst"),
	}
}

// GetServer returns the intake server configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		FilterType:     c.GetString("server.filter_type"),
		ListenAddress:  c.GetString("server.listen_address"),
		Domain:         c.GetString("server.domain"),
		Reinject:       c.GetBool("server.reinject.enabled"),
		ReinjectAddr:   c.GetString("server.reinject.address"),
		ReinjectPort:   c.GetInt("server.reinject.port"),
		ProcessTimeout: c.v.GetDuration("server.process_timeout"),
	}
}

// GetStore returns the store configuration
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		PostgresDSN: c.GetString("store.postgres_dsn"),
		MaxConns:    c.GetInt("store.max_conns"),
	}
}

// GetCache returns the profile cache configuration
func (c *Config) GetCache() CacheConfig {
	return CacheConfig{
		Type:            c.GetString("cache.type"),
		SQLitePath:      c.GetString("cache.sqlite_path"),
		MySQLDSN:        c.GetString("cache.mysql_dsn"),
		TTL:             c.v.GetDuration("cache.ttl"),
		CleanupInterval: c.v.GetDuration("cache.cleanup_interval"),
	}
}

// GetLock returns the lock configuration
func (c *Config) GetLock() LockConfig {
	return LockConfig{
		Type:     c.GetString("lock.type"),
		RedisURL: c.GetString("lock.redis_url"),
		LeaseTTL: c.v.GetDuration("lock.lease_ttl"),
	}
}
