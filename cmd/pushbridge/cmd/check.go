package cmd

import (
	"context"
	"fmt"

	"github.com/go-drift/pushbridge/pkg/bridge"
	"github.com/go-drift/pushbridge/pkg/logger"
	"github.com/go-drift/pushbridge/pkg/script"
	"github.com/go-drift/pushbridge/pkg/sdk"
	"github.com/go-drift/pushbridge/pkg/sdk/sdktest"
)

func init() {
	RegisterCommand(&Command{
		Name:  "check",
		Short: "Validate config and script without connecting",
		Long: `Validate pushbridge.yaml and run a script's top level against an
in-memory SDK. Nothing is contacted; commands the script issues while
loading are answered with empty results.

Reports the config in effect and the listeners the script registered.`,
		Usage: "pushbridge check <script.lua>",
		Run:   runCheck,
	})
}

func runCheck(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("script path is required\n\nUsage: pushbridge check <script.lua>")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	native := sdktest.New()
	b := bridge.New(native, bridgeConfig(cfg), bridge.WithLogger(logger.Discard()))
	defer b.Close(context.Background())

	rt := script.New(b)
	defer rt.Close()
	if err := rt.Load(args[0]); err != nil {
		return err
	}

	fmt.Printf("Config:  nats %s (prefix %s), display timeout %s, sdk %s %s\n",
		cfg.NATS.URL, cfg.NATS.Prefix, cfg.Display.Timeout, cfg.SDK.WrapperType, cfg.SDK.WrapperVersion)
	fmt.Printf("Script:  %s ok, %d listener(s)\n", args[0], rt.Listeners())
	for _, category := range sdk.Categories() {
		if n := native.SubscribeCount(category); n > 0 {
			fmt.Printf("  %s\n", category)
		}
	}
	return nil
}
