// Command pushbridge runs Lua push-notification scripts against a native
// SDK host reached over NATS.
package main

import (
	"fmt"
	"os"

	"github.com/go-drift/pushbridge/cmd/pushbridge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
