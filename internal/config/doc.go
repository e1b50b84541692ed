// Package config provides the configuration of an earnscan run: the
// concurrency, cache, timeout and retry settings of the fetch layer, the
// outputs to write, and per-site request headers. Values come from
// NewConfig, then an optional YAML file, then CLI flags.
package config
