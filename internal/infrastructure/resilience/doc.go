/*
Package resilience provides a circuit breaker used to stop relaunch storms.

The supervisor runs every browser launch through a Breaker. After a number of
consecutive failed launches the breaker opens and launches fail fast until the
cooldown elapses; then a single probe launch is let through (half-open) and a
success closes the breaker again.

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                            |
	                                        [failure]
	                                            v
	                                           Open

Usage:

	breaker := resilience.New("browser-launch", resilience.Settings{
		Timeout: 10 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
	})
	err := breaker.Execute(func() error { return launch() })
*/
package resilience
