// Package version holds the service version reported by the API.
package version

// Version is overridden at build time with -ldflags "-X".
var Version = "1.0.0"
