// Package graph implements the node graph of patchbay: nodes own items, each
// item owns a socket, and sinks link to sources under mode and key rules.
// Payloads written to a source are pushed synchronously to every linked sink.
//
// Nothing in this package is safe for concurrent use. Asynchronous producers
// such as timers post their work through a Loop.
package graph
