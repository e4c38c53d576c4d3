package cmd

import (
	"context"
	"fmt"

	"github.com/go-drift/pushbridge/pkg/bridge"
	"github.com/go-drift/pushbridge/pkg/logger"
	"github.com/go-drift/pushbridge/pkg/sdk/sdktest"
)

func init() {
	RegisterCommand(&Command{
		Name:  "commands",
		Short: "List dispatchable commands",
		Long: `List every command name a script may pass to pushbridge.exec.

Names include the legacy aliases (sendTags, setExternalUserId, ...), which
are normalized to their current equivalents before reaching the SDK.`,
		Usage: "pushbridge commands",
		Run:   runCommands,
	})
}

func runCommands(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("commands takes no arguments")
	}
	b := bridge.New(sdktest.New(), bridge.Config{}, bridge.WithLogger(logger.Discard()))
	defer b.Close(context.Background())
	for _, name := range b.Commands() {
		fmt.Println(name)
	}
	return nil
}
