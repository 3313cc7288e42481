// Package usage records client-side usage metrics into a persistent store
// for later batched upload.
//
// Every recording call is serialized through a single dispatcher so that
// concurrent call sites never race on the stored value:
//   - Public calls never block and never return errors
//   - Values are validated before they reach the store
//   - Counters saturate instead of overflowing
//   - Invalid values are counted as error metrics against the metric
//   - Undecodable stored values are overwritten with a warning
//
// Basic usage:
//
//	config := usage.DefaultConfig()
//	config.Namespace = "myapp"
//	config.ServiceName = "checkout"
//
//	if err := usage.Init(config); err != nil {
//	  log.Fatal(err)
//	}
//	defer usage.Shutdown(context.Background())
//
//	clicks := usage.NewCounter(usage.CommonMetricData{
//	  Category:    "ui",
//	  Name:        "clicks",
//	  SendInPings: []string{"metrics"},
//	  Lifetime:    storage.LifetimePing,
//	})
//	clicks.Add(2)
//
//	req, err := usage.AssemblePing(ctx, "metrics")
package usage
