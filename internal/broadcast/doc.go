// Package broadcast implements the connection registry and message relay using the actor pattern.
//
// The Relay forwards each frame received from one authenticated connection to every other
// registered connection, and periodically evicts connections whose token has expired.
// Uses single goroutine + command channel (no mutexes). Per-connection write goroutines keep
// a slow or dead peer from stalling delivery to the rest.
package broadcast
