// Package logx is rksokd's bootstrap and diagnostics logger.
//
// The daemon's application logs flow through the configured logging graph
// (internal/logdict). logx exists for the places that graph cannot serve:
//   - startup, before the logging document has been applied
//   - the logging pipeline's own failures (a sink cannot report through itself)
//
// It is a small wrapper (logx.Logger) on top of zerolog that keeps console
// output readable (short timestamp + short caller).
package logx
