// Package version reports build information for eventstream binaries.
//
// Version and Commit are set at link time; anything left empty is filled
// from the module build info embedded by the Go toolchain:
//
//	go build -ldflags "-X github.com/kbukum/eventstream/version.Version=1.0.0" ./cmd/eventstreamd
package version
