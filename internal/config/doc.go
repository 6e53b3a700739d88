// Package config loads and persists the emp configuration file. The daemon
// section carries process-wide settings; each attachment owns a namespaced
// key/value section exposed through AttachConfig, and Save pulls every
// attachment's live values back before writing.
package config
