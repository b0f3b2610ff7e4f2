package router

import "expvar"

// routerMetrics record routing activity counters.
type routerMetrics struct {
	routed     expvar.Int // commands passed to Send
	delivered  expvar.Int // commands queued for a local user
	forwarded  expvar.Int // commands sent to a peer
	forwardErr expvar.Int // peer sends reporting an error
	broadcasts expvar.Int
	dropped    expvar.Int // over the hop limit
	unroutable expvar.Int // recipient resolved to nothing

	emap *expvar.Map
}

func newRouterMetrics() *routerMetrics {
	rm := &routerMetrics{emap: new(expvar.Map)}
	rm.emap.Set("commands_routed", &rm.routed)
	rm.emap.Set("commands_delivered", &rm.delivered)
	rm.emap.Set("commands_forwarded", &rm.forwarded)
	rm.emap.Set("commands_forward_failed", &rm.forwardErr)
	rm.emap.Set("broadcasts", &rm.broadcasts)
	rm.emap.Set("commands_dropped", &rm.dropped)
	rm.emap.Set("commands_unroutable", &rm.unroutable)
	return rm
}
