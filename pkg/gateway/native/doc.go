// Package native provides the OS gateway implementations used by the
// memprobe command. Only Linux is currently supported; on other systems
// every operation reports gateway.ErrNotSupported.
package native
