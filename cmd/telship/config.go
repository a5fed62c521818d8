package main

import (
	"github.com/bft-labs/telship/internal/cliconfig"
	"github.com/bft-labs/telship/pkg/telship"
	"github.com/bft-labs/telship/plugins/retrycleanup"
)

// libConfig converts the CLI configuration to the channel configuration.
func libConfig(cfg cliconfig.Config) telship.Config {
	return telship.Config{
		Endpoint:           cfg.Endpoint,
		AuthKey:            cfg.AuthKey,
		DeveloperMode:      cfg.DeveloperMode,
		BackoffPolicy:      cfg.BackoffPolicy,
		Compression:        cfg.Compression,
		RetryDir:           cfg.RetryDir,
		RetryDirCapacity:   cfg.RetryDirCapacity,
		MaxBatchSize:       cfg.MaxBatchSize,
		FlushInterval:      cfg.FlushInterval,
		HTTPTimeout:        cfg.HTTPTimeout,
		LoaderWorkers:      cfg.LoaderWorkers,
		LoaderIdleInterval: cfg.LoaderIdleInterval,
		NetworkPool: telship.PoolConfig{
			MinWorkers:  cfg.NetworkMinWorkers,
			MaxWorkers:  cfg.NetworkMaxWorkers,
			QueueSize:   cfg.NetworkQueueSize,
			IdleTimeout: cfg.NetworkIdleTimeout,
		},
		FileSystemPool: telship.PoolConfig{
			MinWorkers:  cfg.FileSystemMinWorkers,
			MaxWorkers:  cfg.FileSystemMaxWorkers,
			QueueSize:   cfg.FileSystemQueueSize,
			IdleTimeout: cfg.FileSystemIdleTimeout,
		},
	}
}

// cleanupConfig converts the [cleanup] settings to the plugin configuration.
func cleanupConfig(cfg cliconfig.Config) retrycleanup.Config {
	return retrycleanup.Config{
		CheckInterval:  cfg.CleanupInterval,
		MaxAge:         cfg.CleanupMaxAge,
		HighWatermark:  cfg.CleanupHighWatermark,
		LowWatermark:   cfg.CleanupLowWatermark,
		RunImmediately: true,
	}
}
