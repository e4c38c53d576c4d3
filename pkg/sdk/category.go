// Package sdk describes the native push SDK as the bridge sees it: the
// observer categories it can subscribe to, the event shapes it emits, the
// operations it can invoke and the single-use completion actions attached to
// notifications awaiting a display decision.
package sdk

import "fmt"

// Category identifies a native observer stream.
type Category string

const (
	PermissionChanged        Category = "permissionChanged"
	PushSubscriptionChanged  Category = "pushSubscriptionChanged"
	EmailSubscriptionChanged Category = "emailSubscriptionChanged"
	SmsSubscriptionChanged   Category = "smsSubscriptionChanged"
	UserStateChanged         Category = "userStateChanged"
	NotificationWillDisplay  Category = "notificationWillDisplay"
	NotificationClicked      Category = "notificationClicked"
	InAppMessageWillDisplay  Category = "inAppMessageWillDisplay"
	InAppMessageDidDisplay   Category = "inAppMessageDidDisplay"
	InAppMessageWillDismiss  Category = "inAppMessageWillDismiss"
	InAppMessageDidDismiss   Category = "inAppMessageDidDismiss"
	InAppMessageClicked      Category = "inAppMessageClicked"
)

var categories = []Category{
	PermissionChanged,
	PushSubscriptionChanged,
	EmailSubscriptionChanged,
	SmsSubscriptionChanged,
	UserStateChanged,
	NotificationWillDisplay,
	NotificationClicked,
	InAppMessageWillDisplay,
	InAppMessageDidDisplay,
	InAppMessageWillDismiss,
	InAppMessageDidDismiss,
	InAppMessageClicked,
}

// Categories returns every known category in declaration order.
func Categories() []Category {
	return append([]Category(nil), categories...)
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

func (c Category) String() string {
	return string(c)
}

// ParseCategory converts a wire name into a Category.
func ParseCategory(name string) (Category, error) {
	c := Category(name)
	if !c.Valid() {
		return "", fmt.Errorf("unknown observer category %q", name)
	}
	return c, nil
}
