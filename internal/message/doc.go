// Package message defines the typed messages routed between attachments,
// interfaces, and the daemon, plus their flat JSON wire codec. The wire form
// is a single object whose required "message" field selects the variant.
package message
