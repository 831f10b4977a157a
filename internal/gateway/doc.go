// Package gateway hosts the websocket side of sourcewatch: connection
// lifecycle, the subscribe operation, and the push transport used by the
// fan-out dispatcher.
//
// A connection subscribes to at most one source at a time. Subscribing
// replaces any prior subscription and immediately pushes the source's latest
// snapshot, so a fresh subscriber never waits for the next change.
package gateway
