// Package events defines the wire contract between the remote session and
// the synchronization engine, plus the typed notification base shared by the
// engine's outbound events.
//
// Inbound channels
//
//   - store: a conversation record ([Raw] on the wire, [StoreEvent] once
//     validated).
//   - ephemeral:audio-chunk: one base64 PCM chunk of a synthesized speech
//     stream ([AudioChunk]).
//   - ephemeral:audio-complete: the producer finished sending a stream
//     ([AudioComplete]).
//   - ephemeral:audio-error: the producer failed to synthesize or deliver a
//     stream ([AudioError]).
//
// # Store kinds
//
// Wire kinds are folded into a closed set before any other code sees them:
//
//   - interactionRequest, agent-says -> [StoreKindAgentSays]
//   - user-added, user-said -> [StoreKindUserSaid]
//   - perception -> [StoreKindPerception]
//   - system -> [StoreKindSystem]
//
// Anything else is malformed input.
//
// # Timestamps
//
// Wire timestamps may be seconds or milliseconds. Values below 1e12 are
// treated as seconds and scaled to milliseconds; see [NormalizeTimestamp].
package events
