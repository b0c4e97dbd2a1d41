// Package logx configures the task manager's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional alert sink (WARN+ mirrored to stderr, rate limited)
package logx
