// Package prometheus renders engine counters in Prometheus text exposition
// format.
//
// [NewPrometheusExporter] accepts an [authcore.Engine] and exposes an
// [net/http.Handler]. Counter names are prefixed authcore_*_total. The
// exporter never registers in a global Prometheus registry; callers mount
// the Handler themselves.
package prometheus
