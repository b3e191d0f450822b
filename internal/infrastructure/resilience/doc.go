/*
Package resilience provides a circuit breaker for outbound calls.

A Group keeps one breaker per remote host so a failing site cannot starve
requests to healthy ones. Cancellation by the caller, for example when an
app is closed mid-request, does not count against the remote side.

	breakers := resilience.NewGroup(resilience.Settings{
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool { return c.ConsecutiveFailures >= 5 },
	})

	err := breakers.Get(host).Do(ctx, func(ctx context.Context) error {
		return send(ctx, req)
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                            |
	                                        [failure]
	                                            v
	                                           Open
*/
package resilience
