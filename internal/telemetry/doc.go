// Package telemetry implements the event hub that fans wallet events out to subscribers.
//
// Events carry monotonic IDs per stream. The hub keeps the last N events of
// each stream so a subscriber that reconnects with the last ID it saw gets
// what it missed. Subscribers that do not keep up lose events rather than
// block publishers.
package telemetry
