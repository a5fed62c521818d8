package retrycleanup

import "github.com/bft-labs/telship/pkg/telship"

// WithRetryCleanup returns a telship Option that enables retry directory cleanup.
//
// Usage:
//
//	ch, err := telship.New(cfg,
//	    retrycleanup.WithRetryCleanup(retrycleanup.Config{
//	        MaxAge:        24 * time.Hour,
//	        HighWatermark: 64 << 20, // 64 MiB
//	        LowWatermark:  48 << 20, // 48 MiB
//	        CheckInterval: 5 * time.Minute,
//	    }),
//	)
func WithRetryCleanup(cfg Config) telship.Option {
	return telship.WithPlugin(New(cfg))
}

// WithDefaultRetryCleanup returns a telship Option that enables cleanup with
// DefaultConfig.
func WithDefaultRetryCleanup() telship.Option {
	return WithRetryCleanup(DefaultConfig())
}
