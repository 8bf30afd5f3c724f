// Package logx configures woonbot's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured, so crash reports can attach its tail
//   - An optional Telegram sink (min-level + rate limiting)
package logx
