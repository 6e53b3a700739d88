// Package registry tracks every routable identity in the daemon: plugs,
// alarms, transient interfaces, their events and alerts, and the
// subscriptions binding events to alerts. Ids are random strings from a
// fixed alphabet, unique for the registry's lifetime, and persisted ids
// survive restarts through module identity matching.
package registry
