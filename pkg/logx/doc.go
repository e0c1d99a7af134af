// Package logx is the bot's structured logging layer.
//
// A thin wrapper (logx.Logger) over zerolog that keeps:
//   - console output short (compact timestamp, file:line caller)
//   - file output as JSON lines
//   - an optional admin alert sink that forwards warnings/errors to the
//     administrator's private chat, rate limited and never blocking
package logx
