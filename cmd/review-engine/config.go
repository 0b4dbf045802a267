// Copyright Peton Labs, 2026. All rights reserved.

package main

import (
	"time"

	"github.com/spf13/viper"

	"github.com/petonlabs/systematic-review-data-extraction/pkg/types"
)

const defaultUserAgent = "review-engine/0.1"

func setConfigDefaults() {
	viper.SetDefault("rate_limit.api_requests_per_minute", 30)
	viper.SetDefault("rate_limit.sheet_requests_per_minute", 50)
	viper.SetDefault("rate_limit.extractor_requests_per_minute", 20)
	viper.SetDefault("rate_limit.base_delay", time.Second)
	viper.SetDefault("rate_limit.max_backoff", 2*time.Minute)

	viper.SetDefault("cache.dir", "cache")
	viper.SetDefault("cache.key_prefix", "pdfs/")
	viper.SetDefault("cache.max_file_size_mb", 50)

	viper.SetDefault("pdf.page_chunk_size", 10)
	viper.SetDefault("pdf.min_page_text_len", 50)
	viper.SetDefault("pdf.max_text_len", 500_000)

	viper.SetDefault("fetch.timeout", 30*time.Second)
	viper.SetDefault("fetch.user_agent", defaultUserAgent)
	viper.SetDefault("fetch.min_content_len", 500)
	viper.SetDefault("fetch.max_retries", 3)
	viper.SetDefault("fetch.requests_per_second", 2.0)

	viper.SetDefault("progress.database_path", "progress.db")
	viper.SetDefault("mode.state_path", "extraction-mode.json")

	viper.SetDefault("workbook.path", "review.xlsx")
	viper.SetDefault("workbook.item_sheet", "articles")

	viper.SetDefault("extractor.timeout", 2*time.Minute)
	viper.SetDefault("extractor.user_agent", defaultUserAgent)

	viper.SetDefault("item_timeout", 10*time.Minute)
}

// pipelineConfig assembles the full configuration from viper, filling
// credential fields from .secrets/ when the config leaves them empty.
func pipelineConfig() types.PipelineConfig {
	cfg := types.PipelineConfig{
		RateLimit: types.RateLimitConfig{
			APIRequestsPerMinute:       viper.GetInt("rate_limit.api_requests_per_minute"),
			SheetRequestsPerMinute:     viper.GetInt("rate_limit.sheet_requests_per_minute"),
			ExtractorRequestsPerMinute: viper.GetInt("rate_limit.extractor_requests_per_minute"),
			BaseDelay:                  viper.GetDuration("rate_limit.base_delay"),
			MaxBackoff:                 viper.GetDuration("rate_limit.max_backoff"),
		},
		Cache: types.CacheConfig{
			Dir:           viper.GetString("cache.dir"),
			KeyPrefix:     viper.GetString("cache.key_prefix"),
			MaxFileSizeMB: viper.GetInt("cache.max_file_size_mb"),
		},
		PDF: types.PDFConfig{
			PageChunkSize:  viper.GetInt("pdf.page_chunk_size"),
			MinPageTextLen: viper.GetInt("pdf.min_page_text_len"),
			MaxTextLen:     viper.GetInt("pdf.max_text_len"),
		},
		Fetch: types.FetchConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   viper.GetDuration("fetch.timeout"),
				UserAgent: viper.GetString("fetch.user_agent"),
			},
			MinContentLen:     viper.GetInt("fetch.min_content_len"),
			MaxRetries:        viper.GetInt("fetch.max_retries"),
			RequestsPerSecond: viper.GetFloat64("fetch.requests_per_second"),
			UnpaywallEmail:    secretDefault("unpaywall-email", viper.GetString("fetch.unpaywall_email")),
			CrossRefEmail:     secretDefault("crossref-email", viper.GetString("fetch.crossref_email")),
			NCBIAPIKey:        secretDefault("ncbi-api-key", viper.GetString("fetch.ncbi_api_key")),
		},
		Progress: types.ProgressConfig{
			DatabasePath: viper.GetString("progress.database_path"),
		},
		Mode: types.ModeConfig{
			StatePath: viper.GetString("mode.state_path"),
		},
		Workbook: types.WorkbookConfig{
			Path:           viper.GetString("workbook.path"),
			ItemSheet:      viper.GetString("workbook.item_sheet"),
			CategorySheets: viper.GetStringMapString("workbook.category_sheets"),
		},
		Extractor: types.ExtractorConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   viper.GetDuration("extractor.timeout"),
				UserAgent: viper.GetString("extractor.user_agent"),
			},
			Endpoint: viper.GetString("extractor.endpoint"),
			APIKey:   secretDefault("extractor-api-key", viper.GetString("extractor.api_key")),
		},
		ItemTimeout: viper.GetDuration("item_timeout"),
	}
	return cfg
}
