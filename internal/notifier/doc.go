// Package notifier delivers short operator messages (run started, applied,
// failed) through a transport adapter such as Telegram.
//
// Notify never blocks on the network: messages are queued and sent by a
// small worker pool with a shared rate limit, retried with jittered
// exponential backoff, and identical messages within the dedup window are
// suppressed.
package notifier
