// Package distance provides the distance metrics canopy supports and the
// float32 kernels behind them.
//
// A Metric is fixed when a vector space is created and is persisted in the
// index header; query-time ranking always uses the build-time metric.
package distance
