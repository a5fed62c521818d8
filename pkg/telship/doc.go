// Package telship provides an embeddable telemetry delivery channel.
//
// A Channel accepts serialized records (typically one JSON object each),
// batches them, compresses each batch and POSTs it to an ingest endpoint.
// Batches the endpoint cannot take right now are written to a bounded retry
// directory and replayed in the background, paced by a backoff schedule.
// Producers never block on the network.
//
// # Basic Usage
//
//	cfg := telship.Config{
//	    Endpoint: "https://collector.example.com/v1/ingest",
//	    AuthKey:  "your-api-key",
//	    RetryDir: "/var/lib/myapp/telemetry",
//	}
//
//	ch, err := telship.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := ch.Start(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//
//	_ = ch.Send([]byte(`{"name":"request","duration_ms":12}`))
//
//	if err := ch.Stop(30 * time.Second); err != nil {
//	    log.Printf("shutdown error: %v", err)
//	}
//
// # Configuration
//
// Every [Config] field has a default applied by [Config.SetDefaults]; the
// defaults flush every 500 records or 10 seconds and keep up to 10 MiB on
// disk. DeveloperMode flushes each record on its own and can be toggled at
// runtime with [Channel.SetDeveloperMode].
//
// # Delivery guarantees
//
// Delivery is best effort. A batch the endpoint does not accept is kept on
// disk and replayed. It is lost only when a worker pool queue is full, when
// it cannot be serialized, or when the retry directory is full. Replayed batches
// may arrive after newer ones. Use [WithEventHandler] or [WithRegisterer] to
// observe losses.
//
// # Plugins
//
//	import "github.com/bft-labs/telship/plugins/configwatcher"
//	import "github.com/bft-labs/telship/plugins/retrycleanup"
//
//	ch, err := telship.New(cfg,
//	    configwatcher.WithConfigWatcher(configwatcher.Config{Path: "/etc/telship.toml"}),
//	    retrycleanup.WithRetryCleanup(retrycleanup.DefaultConfig()),
//	)
package telship
