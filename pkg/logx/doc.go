// Package logx configures offerbot's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional event-bus sink (min-level + rate limiting) so dashboards can
//     surface operational problems next to tenant lifecycle events
package logx
