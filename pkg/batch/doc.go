// Package batch fetches many upstream resources in parallel with bounded
// concurrency.
//
// Every request goes through a client.Fetcher, so cached resources are
// answered locally and only misses reach the upstream. One failing request
// never cancels the others; each Result carries its own error.
//
// Usage:
//
//	fetcher := batch.NewFetcher(avClient, batch.DefaultConfig())
//	results := fetcher.FetchAll(ctx, []client.ResourceRequest{
//		client.NewRequest("GLOBAL_QUOTE", "symbol", "IBM"),
//		client.NewRequest("GLOBAL_QUOTE", "symbol", "MSFT"),
//	})
//	for _, r := range results {
//		if r.Err != nil { ... }
//	}
package batch
