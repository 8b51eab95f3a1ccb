/*
Package metrics exposes the daemon's Prometheus instrumentation and the
/health, /ready and /live HTTP endpoints (§6's ambient observability
surface).

Metrics are grouped by the component that owns them: the scheduler manager
(cycle counts, outcomes, duration, inter-cycle period) and the
synchronization manager (session outcomes, per-phase duration, timeout
count). Every metric is registered against the default Prometheus registry
at package init, alongside the Go runtime collectors promauto/promhttp pull
in automatically.

Health is tracked separately from metrics: RegisterComponent records a
named subsystem's up/down status, and HealthHandler/ReadyHandler/
LivenessHandler render the aggregate as JSON. Readiness additionally gates
on a fixed set of critical components (the accounter, the application
manager, and the application proxy) so a load balancer or supervisor can
tell "running" apart from "ready to accept EXC connections".

	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
*/
package metrics
