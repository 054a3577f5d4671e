// Package logx is the daemon's structured logging, a thin layer over zerolog.
//
// Console output is short and human readable (colors only on a terminal),
// file output is JSON, and noisy warnings can be capped with Throttled or
// Every. Loggers derived from a Service follow its hot reconfiguration.
package logx
