// Package metrics exposes the outcome of a sync run as Prometheus metrics
// written to a node exporter textfile.
package metrics
