package types

import "time"

// HTTPConfig holds shared HTTP settings used by fetchers that make network requests.
type HTTPConfig struct {
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "research-hub/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	// RequestsPerSecond caps outbound requests per fetcher. Zero disables limiting.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`

	// MaxRetries bounds retries on HTTP 429/5xx inside a single request (default 2).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// FetchConfig holds settings for the fetch orchestrator.
type FetchConfig struct {
	// Concurrency is the number of sources fetched in parallel (default 4).
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`

	// TaskTimeout is the hard deadline for one source, retries included (default 15s).
	TaskTimeout time.Duration `json:"task_timeout" yaml:"task_timeout" mapstructure:"task_timeout"`

	// MaxAttempts bounds transient-error retries of a source (default 3).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`

	// RetryBaseDelay is the first backoff delay; it doubles per attempt (default 500ms).
	RetryBaseDelay time.Duration `json:"retry_base_delay" yaml:"retry_base_delay" mapstructure:"retry_base_delay"`

	// ExcerptLimit bounds SourceRecord.Excerpt in runes (default 4000).
	ExcerptLimit int `json:"excerpt_limit" yaml:"excerpt_limit" mapstructure:"excerpt_limit"`

	// MaxResults is the per-source result cap passed to search APIs (default 10).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`
}

// SourceKind selects the fetcher implementation for a configured source.
type SourceKind string

const (
	SourcePubMed          SourceKind = "pubmed"
	SourceOpenAlex        SourceKind = "openalex"
	SourceSemanticScholar SourceKind = "semantic_scholar"
	SourceArxiv           SourceKind = "arxiv"
	SourceWeb             SourceKind = "web"
	SourceBrowser         SourceKind = "browser"
)

// SourceConfig describes one evidence source.
type SourceConfig struct {
	// Name labels the ResultSet produced by this source.
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// Kind selects the fetcher: pubmed, openalex, semantic_scholar, arxiv, web, browser.
	Kind SourceKind `json:"kind" yaml:"kind" mapstructure:"kind"`

	// Targets are URLs or URL templates; "{query}" is replaced with the
	// escaped query text. Empty means the query text itself.
	Targets []string `json:"targets,omitempty" yaml:"targets,omitempty" mapstructure:"targets"`

	// Disabled skips the source without removing it from the config file.
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty" mapstructure:"disabled"`
}

// CacheConfig holds TTL and capacity settings for the term and entity caches.
type CacheConfig struct {
	// TTL is the term cache entry lifetime (default 24h).
	TTL time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`

	// MaxEntries bounds the term cache (default 20).
	MaxEntries int `json:"max_entries" yaml:"max_entries" mapstructure:"max_entries"`

	// EntityTTL is the entity research record lifetime (default 24h).
	EntityTTL time.Duration `json:"entity_ttl" yaml:"entity_ttl" mapstructure:"entity_ttl"`
}

// MemoryConfig bounds the conversation memory store.
type MemoryConfig struct {
	MaxConversations           int `json:"max_conversations" yaml:"max_conversations" mapstructure:"max_conversations"`
	MaxMessagesPerConversation int `json:"max_messages_per_conversation" yaml:"max_messages_per_conversation" mapstructure:"max_messages_per_conversation"`
	MaxGlobalMessages          int `json:"max_global_messages" yaml:"max_global_messages" mapstructure:"max_global_messages"`

	// ContextMessages is how many recent messages of the conversation go into a context (default 10).
	ContextMessages int `json:"context_messages" yaml:"context_messages" mapstructure:"context_messages"`

	// CrossConversationMessages is how many messages from other conversations go into a context (default 10).
	CrossConversationMessages int `json:"cross_conversation_messages" yaml:"cross_conversation_messages" mapstructure:"cross_conversation_messages"`

	// EntityExcerptLimit caps each entity's raw content in a context, in runes (default 4000).
	EntityExcerptLimit int `json:"entity_excerpt_limit" yaml:"entity_excerpt_limit" mapstructure:"entity_excerpt_limit"`
}

// StorageBackend selects where cache snapshots are persisted.
type StorageBackend string

const (
	StorageMemory StorageBackend = "memory"
	StorageFile   StorageBackend = "file"
	StorageSQLite StorageBackend = "sqlite"
	StorageRedis  StorageBackend = "redis"
)

// StorageConfig holds persistence backend settings.
type StorageConfig struct {
	// Backend is memory, file, sqlite, or redis (default file).
	Backend StorageBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// Dir holds file snapshots or the SQLite database (default ".research-hub").
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	RedisAddr     string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty" mapstructure:"redis_addr"`
	RedisPassword string `json:"redis_password,omitempty" yaml:"redis_password,omitempty" mapstructure:"redis_password"`
	RedisDB       int    `json:"redis_db,omitempty" yaml:"redis_db,omitempty" mapstructure:"redis_db"`

	// RedisPrefix namespaces keys in a shared Redis instance.
	RedisPrefix string `json:"redis_prefix,omitempty" yaml:"redis_prefix,omitempty" mapstructure:"redis_prefix"`
}

// ScoringConfig overrides the built-in credibility domain lists.
type ScoringConfig struct {
	HighCredibility   []string `json:"high_credibility,omitempty" yaml:"high_credibility,omitempty" mapstructure:"high_credibility"`
	MediumCredibility []string `json:"medium_credibility,omitempty" yaml:"medium_credibility,omitempty" mapstructure:"medium_credibility"`
}

// AIConfig holds settings for the text model used to derive search terms.
type AIConfig struct {
	// Model is the AI model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// MaxRetries is the number of retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// MaxQueries caps how many queries are derived from one document (default 3).
	MaxQueries int `json:"max_queries" yaml:"max_queries" mapstructure:"max_queries"`
}

// BrowserConfig holds settings for the browser-backed batch fetcher.
type BrowserConfig struct {
	// ControlURL connects to a running browser; empty launches one.
	ControlURL string `json:"control_url,omitempty" yaml:"control_url,omitempty" mapstructure:"control_url"`

	Headless bool `json:"headless" yaml:"headless" mapstructure:"headless"`

	// NavigationTimeout bounds each page load (default 20s).
	NavigationTimeout time.Duration `json:"navigation_timeout" yaml:"navigation_timeout" mapstructure:"navigation_timeout"`
}

// Config groups all settings.
type Config struct {
	HTTP    HTTPConfig     `json:"http" yaml:"http" mapstructure:"http"`
	Fetch   FetchConfig    `json:"fetch" yaml:"fetch" mapstructure:"fetch"`
	Sources []SourceConfig `json:"sources" yaml:"sources" mapstructure:"sources"`
	Cache   CacheConfig    `json:"cache" yaml:"cache" mapstructure:"cache"`
	Memory  MemoryConfig   `json:"memory" yaml:"memory" mapstructure:"memory"`
	Storage StorageConfig  `json:"storage" yaml:"storage" mapstructure:"storage"`
	Scoring ScoringConfig  `json:"scoring" yaml:"scoring" mapstructure:"scoring"`
	AI      AIConfig       `json:"ai" yaml:"ai" mapstructure:"ai"`
	Browser BrowserConfig  `json:"browser" yaml:"browser" mapstructure:"browser"`

	// OpenAlexEmail is sent as mailto for the OpenAlex polite pool.
	OpenAlexEmail string `json:"openalex_email,omitempty" yaml:"openalex_email,omitempty" mapstructure:"openalex_email"`

	// NCBIAPIKey raises the PubMed E-utilities rate limit.
	NCBIAPIKey string `json:"ncbi_api_key,omitempty" yaml:"ncbi_api_key,omitempty" mapstructure:"ncbi_api_key"`

	// SemanticScholarAPIKey is an optional API key for higher rate limits.
	SemanticScholarAPIKey string `json:"semantic_scholar_api_key,omitempty" yaml:"semantic_scholar_api_key,omitempty" mapstructure:"semantic_scholar_api_key"`
}

// DefaultConfig returns the built-in defaults. Zero values in a loaded
// config are filled from these by the consumers.
func DefaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Timeout:           20 * time.Second,
			UserAgent:         "research-hub/0.1",
			RequestsPerSecond: 3,
			MaxRetries:        2,
		},
		Fetch: FetchConfig{
			Concurrency:    4,
			TaskTimeout:    15 * time.Second,
			MaxAttempts:    3,
			RetryBaseDelay: 500 * time.Millisecond,
			ExcerptLimit:   4000,
			MaxResults:     10,
		},
		Sources: []SourceConfig{
			{Name: "PubMed", Kind: SourcePubMed},
			{Name: "OpenAlex", Kind: SourceOpenAlex},
			{Name: "Semantic Scholar", Kind: SourceSemanticScholar},
		},
		Cache: CacheConfig{
			TTL:        24 * time.Hour,
			MaxEntries: 20,
			EntityTTL:  24 * time.Hour,
		},
		Memory: MemoryConfig{
			MaxConversations:           50,
			MaxMessagesPerConversation: 100,
			MaxGlobalMessages:          200,
			ContextMessages:            10,
			CrossConversationMessages:  10,
			EntityExcerptLimit:         4000,
		},
		Storage: StorageConfig{
			Backend: StorageFile,
			Dir:     ".research-hub",
		},
		AI: AIConfig{
			Model:      "claude-sonnet-4-5-20250929",
			MaxRetries: 3,
			MaxQueries: 3,
		},
		Browser: BrowserConfig{
			Headless:          true,
			NavigationTimeout: 20 * time.Second,
		},
	}
}
