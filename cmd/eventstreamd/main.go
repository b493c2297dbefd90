// Command eventstreamd serves a resumable event stream over HTTP and can
// tail one as a reconnecting client.
//
//	eventstreamd serve                 Serve GET /events from the configured log
//	eventstreamd tail <url>            Print events from a stream, resuming on drops
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
