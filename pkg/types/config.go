package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make
// network requests.
type HTTPConfig struct {
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "review-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// RateLimitConfig holds per-service request budgets for the sliding
// one-minute admission window.
type RateLimitConfig struct {
	// APIRequestsPerMinute bounds calls to scholarly registries and
	// aggregators (CrossRef, Unpaywall, NCBI, arXiv).
	APIRequestsPerMinute int `json:"api_requests_per_minute" yaml:"api_requests_per_minute"`

	// SheetRequestsPerMinute bounds workbook backend operations.
	SheetRequestsPerMinute int `json:"sheet_requests_per_minute" yaml:"sheet_requests_per_minute"`

	// ExtractorRequestsPerMinute bounds calls to the extraction collaborator.
	ExtractorRequestsPerMinute int `json:"extractor_requests_per_minute" yaml:"extractor_requests_per_minute"`

	// BaseDelay is an optional fixed smoothing delay applied after each
	// admission, and the base for exponential backoff.
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay"`

	// MaxBackoff caps the exponential backoff delay.
	MaxBackoff time.Duration `json:"max_backoff" yaml:"max_backoff"`
}

// CacheConfig holds settings for the content-addressable document cache.
type CacheConfig struct {
	// Dir is the base directory for cached documents.
	Dir string `json:"dir" yaml:"dir"`

	// KeyPrefix is prepended to every cache key (e.g. "pdfs/").
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`

	// MaxFileSizeMB rejects documents larger than this before caching.
	MaxFileSizeMB int `json:"max_file_size_mb" yaml:"max_file_size_mb"`
}

// PDFConfig holds settings for document text extraction.
type PDFConfig struct {
	// PageChunkSize is the number of pages processed per batch to bound
	// peak memory.
	PageChunkSize int `json:"page_chunk_size" yaml:"page_chunk_size"`

	// MinPageTextLen discards pages with less extracted text than this
	// (scan artifacts, blank pages).
	MinPageTextLen int `json:"min_page_text_len" yaml:"min_page_text_len"`

	// MaxTextLen stops extraction once the accumulated text exceeds this.
	MaxTextLen int `json:"max_text_len" yaml:"max_text_len"`
}

// FetchConfig holds settings for the source-resolution chain.
type FetchConfig struct {
	HTTPConfig `yaml:",inline"`

	// MinContentLen is the minimum cleaned-text length for a source
	// result to be accepted (default 500).
	MinContentLen int `json:"min_content_len" yaml:"min_content_len"`

	// MaxRetries bounds retry attempts per source on transient failures.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// RequestsPerSecond smooths outbound requests client-side.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`

	// UnpaywallEmail is required by the Unpaywall API. Empty disables
	// that source.
	UnpaywallEmail string `json:"unpaywall_email,omitempty" yaml:"unpaywall_email,omitempty"`

	// CrossRefEmail is sent as mailto for polite-pool access.
	CrossRefEmail string `json:"crossref_email,omitempty" yaml:"crossref_email,omitempty"`

	// NCBIAPIKey raises the NCBI request quota when set.
	NCBIAPIKey string `json:"ncbi_api_key,omitempty" yaml:"ncbi_api_key,omitempty"`
}

// ProgressConfig holds settings for the durable progress store.
type ProgressConfig struct {
	// DatabasePath is the SQLite file tracking per-item state.
	DatabasePath string `json:"database_path" yaml:"database_path"`
}

// ModeConfig holds settings for acquisition-strategy persistence.
type ModeConfig struct {
	// StatePath is the JSON file recording the active strategy and
	// aggregate counters.
	StatePath string `json:"state_path" yaml:"state_path"`
}

// WorkbookConfig holds settings for the tabular backend.
type WorkbookConfig struct {
	// Path is the XLSX workbook holding the work list and result sheets.
	Path string `json:"path" yaml:"path"`

	// ItemSheet names the sheet listing work items (default "articles").
	ItemSheet string `json:"item_sheet" yaml:"item_sheet"`

	// CategorySheets maps extraction category names to sheet names.
	CategorySheets map[string]string `json:"category_sheets" yaml:"category_sheets"`
}

// ExtractorConfig holds settings for the extraction collaborator.
type ExtractorConfig struct {
	HTTPConfig `yaml:",inline"`

	// Endpoint is the collaborator URL receiving (text, metadata) and
	// returning category-to-field mappings.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// APIKey authenticates requests when set.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
}

// PipelineConfig groups all component configurations. It is constructed
// once at startup and passed by reference into each constructor.
type PipelineConfig struct {
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	PDF       PDFConfig       `json:"pdf" yaml:"pdf"`
	Fetch     FetchConfig     `json:"fetch" yaml:"fetch"`
	Progress  ProgressConfig  `json:"progress" yaml:"progress"`
	Mode      ModeConfig      `json:"mode" yaml:"mode"`
	Workbook  WorkbookConfig  `json:"workbook" yaml:"workbook"`
	Extractor ExtractorConfig `json:"extractor" yaml:"extractor"`

	// ItemTimeout bounds the full fetch/extract/update sequence for one
	// item so a stuck fetch cannot stall the batch.
	ItemTimeout time.Duration `json:"item_timeout" yaml:"item_timeout"`
}
