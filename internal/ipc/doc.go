// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management, request/response DTOs, and conversions
// between job models and lightweight wire representations. The server embeds
// the daemon; the Events RPC long-polls the event hub so CLI watchers can
// resume from a sequence cursor without holding a dedicated stream.
//
// Reuse these types when adding new RPC endpoints to keep the protocol stable
// and compatible with existing command implementations.
package ipc
