// Package server exposes syncd's HTTP surface: health and metrics
// endpoints, the sync status snapshot, a thin publish endpoint for the
// mutation path, and the admin force-reconnect trigger.
package server
