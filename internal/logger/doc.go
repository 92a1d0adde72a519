// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a console encoder,
//   - context helpers (WithName/WithKV/WithMinLevel),
//   - level configuration and parsing utilities,
//   - leveled helpers (InfoKV, ErrorKV, etc.).
//
// Services accept a context and extract the logger from it, so a run ID
// attached once at the top of a sync cycle shows up on every line it logs.
package logger
