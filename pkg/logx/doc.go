// Package logx configures vaultwatch's structured logging.
//
// It wraps zerolog in a small value type (logx.Logger) to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured and size-rotated
//   - An optional ops-chat sink for warnings (min-level + rate limiting)
package logx
