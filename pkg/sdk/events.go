package sdk

// Event is a native SDK event. Implementations are plain values; the bridge
// converts them to envelopes before they cross into the script runtime.
type Event interface {
	Category() Category
}

// PermissionChange reports a change of the notification permission.
type PermissionChange struct {
	Permission bool
}

// PushSubscriptionState is the device's push subscription.
// ID and Token are assigned by the SDK and may be absent.
type PushSubscriptionState struct {
	ID      *string
	Token   *string
	OptedIn bool
}

// PushSubscriptionChange reports a push subscription transition.
type PushSubscriptionChange struct {
	Previous PushSubscriptionState
	Current  PushSubscriptionState
}

// EmailSubscriptionState is an email channel subscription.
type EmailSubscriptionState struct {
	ID           *string
	EmailAddress string
	IsSubscribed bool
}

// EmailSubscriptionChange reports an email subscription transition.
type EmailSubscriptionChange struct {
	Previous EmailSubscriptionState
	Current  EmailSubscriptionState
}

// SmsSubscriptionState is an SMS channel subscription.
type SmsSubscriptionState struct {
	ID           *string
	SmsNumber    string
	IsSubscribed bool
}

// SmsSubscriptionChange reports an SMS subscription transition.
type SmsSubscriptionChange struct {
	Previous SmsSubscriptionState
	Current  SmsSubscriptionState
}

// UserState identifies the current user. Both ids may legitimately be absent.
type UserState struct {
	OnesignalID *string
	ExternalID  *string
}

// UserStateChange reports a user identity change.
type UserStateChange struct {
	Current UserState
}

// ActionButton is a button attached to a notification.
type ActionButton struct {
	ID   string
	Text string
	Icon string
}

// Notification is a received push notification. Zero-valued optional fields
// are treated as absent.
type Notification struct {
	NotificationID string
	Body           string
	Title          string
	Sound          string
	LaunchURL      string
	RawPayload     string
	ActionButtons  []ActionButton
	AdditionalData map[string]any

	// Android.
	GroupKey              string
	GroupMessage          string
	LedColor              string
	Priority              *int
	SmallIcon             string
	LargeIcon             string
	BigPicture            string
	CollapseID            string
	FromProjectNumber     string
	SmallIconAccentColor  string
	LockScreenVisibility  *int
	AndroidNotificationID *int

	// iOS.
	Badge             *int
	BadgeIncrement    *int
	Category          string
	ThreadID          string
	Subtitle          string
	TemplateID        string
	TemplateName      string
	Attachments       map[string]any
	MutableContent    bool
	ContentAvailable  bool
	RelevanceScore    *float64
	InterruptionLevel string
}

// NotificationReceived is a foreground notification whose display is held
// until Completion is resolved.
type NotificationReceived struct {
	Notification Notification
	Completion   Completion
}

// NotificationClickResult describes what was tapped.
type NotificationClickResult struct {
	ActionID string
	URL      string
}

// NotificationClick reports a user opening a notification.
type NotificationClick struct {
	Notification Notification
	Result       NotificationClickResult
}

// InAppMessage identifies an in-app message.
type InAppMessage struct {
	MessageID string
}

// InAppMessageLifecycle is emitted for the four will/did display/dismiss
// transitions; Stage selects which one.
type InAppMessageLifecycle struct {
	Stage   Category
	Message InAppMessage
}

// InAppMessageClickResult describes an in-app message click.
type InAppMessageClickResult struct {
	ActionID       string
	URLTarget      string
	URL            string
	ClosingMessage bool
}

// InAppMessageClick reports a click inside an in-app message.
type InAppMessageClick struct {
	Message InAppMessage
	Result  InAppMessageClickResult
}

// RawEvent carries an event whose shape the bridge does not model.
type RawEvent struct {
	Kind   Category
	Fields map[string]any
}

func (PermissionChange) Category() Category        { return PermissionChanged }
func (PushSubscriptionChange) Category() Category  { return PushSubscriptionChanged }
func (EmailSubscriptionChange) Category() Category { return EmailSubscriptionChanged }
func (SmsSubscriptionChange) Category() Category   { return SmsSubscriptionChanged }
func (UserStateChange) Category() Category         { return UserStateChanged }
func (NotificationReceived) Category() Category    { return NotificationWillDisplay }
func (NotificationClick) Category() Category       { return NotificationClicked }
func (e InAppMessageLifecycle) Category() Category { return e.Stage }
func (InAppMessageClick) Category() Category       { return InAppMessageClicked }
func (e RawEvent) Category() Category              { return e.Kind }
