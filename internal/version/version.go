// Package version holds the server version reported in banners and window
// titles.
package version

// Version is the human-readable server version. Overridden at release
// build time via -ldflags.
var Version = "9.39.0-dev"
