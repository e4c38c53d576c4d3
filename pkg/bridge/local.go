package bridge

import (
	"context"

	"github.com/go-drift/pushbridge/pkg/envelope"
	"github.com/go-drift/pushbridge/pkg/registry"
	"github.com/go-drift/pushbridge/pkg/sdk"
)

// registerLocal binds the commands the bridge answers itself.
func (b *Bridge) registerLocal() {
	b.dispatcher.Handle("addEventListener", b.addEventListener)
	b.dispatcher.Handle("removeEventListener", b.removeEventListener)
	b.dispatcher.Handle("preventDefault", b.preventDefault)
	b.dispatcher.Handle("proceedWithWillDisplay", b.proceedWithWillDisplay)
	b.dispatcher.Handle("displayNotification", b.displayNotification)
	b.dispatcher.Handle("completeNotification", b.completeNotification)
}

// addEventListener(category, key?) returns the persistent handle.
func (b *Bridge) addEventListener(ctx context.Context, args envelope.Args) (any, error) {
	name, err := args.String(0)
	if err != nil {
		return nil, err
	}
	var key string
	if args.Value(1) != nil {
		if key, err = args.String(1); err != nil {
			return nil, err
		}
	}
	h, err := b.AddListener(ctx, sdk.Category(name), key)
	if err != nil {
		return nil, err
	}
	return string(h), nil
}

// removeEventListener(handle) reports whether the handle was registered.
func (b *Bridge) removeEventListener(_ context.Context, args envelope.Args) (any, error) {
	h, err := args.String(0)
	if err != nil {
		return nil, err
	}
	return b.RemoveListener(registry.Handle(h)), nil
}

// preventDefault(notificationId)
func (b *Bridge) preventDefault(_ context.Context, args envelope.Args) (any, error) {
	id, err := args.String(0)
	if err != nil {
		return nil, err
	}
	return nil, b.PreventDefault(id)
}

// proceedWithWillDisplay(notificationId, payload?)
func (b *Bridge) proceedWithWillDisplay(_ context.Context, args envelope.Args) (any, error) {
	id, err := args.String(0)
	if err != nil {
		return nil, err
	}
	payload, err := args.OptionalObject(1)
	if err != nil {
		return nil, err
	}
	return nil, b.Proceed(id, payload)
}

// displayNotification(notificationId)
func (b *Bridge) displayNotification(_ context.Context, args envelope.Args) (any, error) {
	id, err := args.String(0)
	if err != nil {
		return nil, err
	}
	return nil, b.Proceed(id, nil)
}

// completeNotification(notificationId, shouldDisplay) is the older single
// entry point for both directives.
func (b *Bridge) completeNotification(_ context.Context, args envelope.Args) (any, error) {
	id, err := args.String(0)
	if err != nil {
		return nil, err
	}
	show, err := args.Bool(1)
	if err != nil {
		return nil, err
	}
	if show {
		return nil, b.Proceed(id, nil)
	}
	return nil, b.PreventDefault(id)
}
