// Package notifications delivers job lifecycle events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. The Dispatcher subscribes to the event hub and translates
// terminal job events into user-friendly messages, so delivery never sits on
// the worker path.
//
// Extend this package if you need alternative transports; the dispatcher
// depends only on the simple Service interface.
package notifications
