// Package events delivers cache mutation events to subscribed listeners.
//
// Subscriptions are identified by generation-tagged handles with mandatory
// unsubscribe; periodic pruning of closed slots is the primary cleanup
// mechanism. Listener errors are isolated per subscription and routed to a
// per-subscription error hook when present, else logged.
package events
