// Package internaldefs exposes stable metric name definitions shared by
// exporter implementations.
//
// Counter definitions live here so that both the Prometheus and OTel exporters
// expose identical metric names. Changes in this package affect all exporters
// simultaneously.
package internaldefs
