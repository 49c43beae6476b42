// Package transport implements the gateway's wire multiplexer: three
// logical channels (REQ/REP, SUB, PUSH) carried over consecutive TCP ports
// to an MT5-compatible broker endpoint.
//
// Every outbound request is framed as an Envelope, optionally sealed by an
// Encryptor, length-prefixed, and sent on the REQ socket. A pending-request
// table correlates the broker's reply envelope back to the caller by id,
// guaranteeing exactly one terminal resolution per request: reply, timeout,
// connection loss, or caller cancellation. The SUB socket carries inbound
// topic events; the PUSH socket carries fire-and-forget outbound
// notifications with no correlation and no retry.
//
// Framing is a 4-byte big-endian length prefix followed by the (optionally
// encrypted) JSON-encoded envelope, read with io.ReadFull so a short read
// never desynchronizes the stream.
package transport
