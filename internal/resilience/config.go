package resilience

import "time"

// ForFetch builds the retry settings for page fetches from crawl config.
// maxRetries counts retries after the first attempt; a negative value
// disables retrying.
func ForFetch(maxRetries int, initialBackoff time.Duration) RetryConfig {
	cfg := DefaultRetryConfig()
	switch {
	case maxRetries < 0:
		cfg.MaxAttempts = 1
	case maxRetries > 0:
		cfg.MaxAttempts = maxRetries + 1
	}
	if initialBackoff > 0 {
		cfg.InitialBackoff = initialBackoff
	}
	return cfg
}
