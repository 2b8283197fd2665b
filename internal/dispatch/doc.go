// Package dispatch consumes messages from a queue and runs the command each
// one carries.
//
// The dispatcher handles one message at a time:
//   - receive with a long-poll (at most one message)
//   - decode the JSON payload; undecodable or commandless messages are logged
//     and left in the queue
//   - run the handler inside metrics.Recorder.Capture, tagged with the
//     payload tags and queue_name
//   - delete the message only when the handler succeeds
//
// A message that is not deleted becomes visible again once the transport's
// visibility timeout lapses, so every failure is retried by redelivery.
// Retry counting and dead-lettering belong to the transport.
//
// Shutdown:
//   - ctx is checked between iterations and while waiting for a receive
//   - a handler that has started runs to completion, and its message is still
//     deleted on success, because both run on a context detached from ctx
//   - there is no timeout on handlers; a hung command blocks the worker
package dispatch
