// Package socketserver serves the request protocol to many concurrent clients.
//
// # Architecture
//
//   - Server: accepts TCP connections, enforces the connection limit and runs every
//     connection on a bounded pool of workers. Connections above the worker count
//     wait until a worker is free.
//   - Hub: tracks accepted connections so they can be counted and closed on shutdown.
//   - Client: the per-connection read loop. It decodes one request at a time,
//     hands it to the Dispatcher and writes the answer before reading the next.
//   - Dispatcher: the operation table keyed by request type. It resolves the session,
//     runs the operation against the shared state.Directory, flushes the acting
//     user's invites and maps errors to protocol error codes.
//
// # Framing
//
// On TCP every message is a frame: a 4-byte big-endian length followed by the
// encoded envelope (JSON or CBOR, see package protocol). Other transports, such as
// the websocket endpoint of package web, implement Transport and are served with
// Server.ServeTransport.
//
// # Errors
//
// A malformed or oversized frame is answered with MALFORMED_FRAME and the
// connection keeps being served. An unknown request type is answered with
// UNKNOWN_REQUEST. Only a broken transport ends the read loop.
//
// # Invites
//
// Invite notifications are pushed with type invite_notification and no request
// ID. For a request by a logged-in user they are written after the operation is
// applied and before its response.
package socketserver
