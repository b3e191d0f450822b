// Package client is the outbound HTTP client behind the app fetch
// capability.
//
// Built on go-resty/resty over a go-retryablehttp pooled transport, with a
// token-bucket limiter shared by all apps and one circuit breaker per
// remote host. Every request runs under the calling app's context, so
// closing the app aborts its in-flight requests.
//
//	c := client.New(client.Config{Timeout: 10 * time.Second}, logger, metrics)
//	resp, err := c.Fetch(ctx, types.FetchRequest{Method: "GET", URL: "https://example.com"})
package client
