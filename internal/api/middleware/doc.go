/*
Package middleware provides the HTTP middleware of the desktop API.

  - CORS wraps gin-contrib/cors; WebSocket upgrades are allowed.
  - RateLimit keeps a token bucket per client IP and sweeps idle ones.
  - GlobalRateLimit shares one bucket across all clients.
  - RequestLogger writes one zap line per request with its trace id.

Rejected requests get 429 with a Retry-After header and the usual
{"success": false, "error": ...} envelope.
*/
package middleware
