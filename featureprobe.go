// Package featureprobe is the Go client SDK for FeatureProbe toggles.
//
// The client keeps a local snapshot of toggles already evaluated by the
// server for one user and serves typed lookups from it. Three background
// systems keep it alive:
//  1. Sync System - polls the toggles endpoint every RefreshInterval; New can block up to StartWait for the first response
//  2. Realtime System - a websocket subscription whose "update" signal triggers an immediate sync
//  3. Event System - batches access/debug/custom events and uploads them every RefreshInterval or every EventCapacity events
//
// Lookups never fail and never touch the network: a missing toggle or a
// value of the wrong type yields the caller's default plus a reason.
package featureprobe
