// Package signaling implements the WebSocket fan-out at the core of the
// relay: rooms, per-connection clients, and the router that forwards WebRTC
// negotiation (offer/answer/ICE candidates) and chat between peers.
//
// The relay never inspects SDP or candidate payloads. It stamps the sender's
// identity on every message and delivers envelopes verbatim otherwise.
package signaling
