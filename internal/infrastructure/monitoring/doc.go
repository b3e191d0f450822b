/*
Package monitoring provides Prometheus metrics for the backend.

Collectors live on a private registry so several instances can coexist in
tests. Metrics satisfies the sandbox, bus and notification metric hooks.

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "vfs", "write")
	// ... perform operation ...
	timer.Done(err)
*/
package monitoring
