// Package envelope converts native SDK events into portable, ordered values
// and decodes command arguments coming back from the script runtime.
//
// An Envelope never aliases the native object it was built from: every value
// is copied into the envelope value set (nil, bool, int64, float64, string,
// []any and *Object) when it is encoded.
package envelope

import (
	"github.com/go-drift/pushbridge/pkg/sdk"
)

// Envelope is an encoded native event tagged with its category.
type Envelope struct {
	Category sdk.Category
	Fields   *Object
}

// New returns an envelope holding a copy of fields.
func New(category sdk.Category, fields *Object) Envelope {
	if fields == nil {
		fields = NewObject()
	} else {
		fields = fields.Clone()
	}
	return Envelope{Category: category, Fields: fields}
}

// Clone returns a deep copy of e.
func (e Envelope) Clone() Envelope {
	return New(e.Category, e.Fields)
}

// MarshalJSON encodes the envelope fields in order.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Fields == nil {
		return []byte("{}"), nil
	}
	return e.Fields.MarshalJSON()
}

// NotificationID returns the id of the notification carried by the envelope,
// or "" when there is none.
func (e Envelope) NotificationID() string {
	if id := e.Fields.GetString("notificationId"); id != "" {
		return id
	}
	v, _ := e.Fields.Get("notification")
	if n, ok := v.(*Object); ok {
		return n.GetString("notificationId")
	}
	return ""
}

// Encode converts a native event into an envelope. It is total: events the
// codec does not model are encoded from their raw fields.
func Encode(ev sdk.Event) Envelope {
	if ev == nil {
		return Envelope{Fields: NewObject()}
	}
	o := NewObject()
	switch e := ev.(type) {
	case sdk.PermissionChange:
		o.Set("permission", e.Permission)
	case sdk.PushSubscriptionChange:
		o.Set("previous", encodePushState(e.Previous))
		o.Set("current", encodePushState(e.Current))
	case sdk.EmailSubscriptionChange:
		o.Set("previous", encodeEmailState(e.Previous))
		o.Set("current", encodeEmailState(e.Current))
	case sdk.SmsSubscriptionChange:
		o.Set("previous", encodeSmsState(e.Previous))
		o.Set("current", encodeSmsState(e.Current))
	case sdk.UserStateChange:
		cur := NewObject()
		cur.Set("onesignalId", optString(e.Current.OnesignalID))
		cur.Set("externalId", optString(e.Current.ExternalID))
		o.Set("current", cur)
	case sdk.NotificationReceived:
		o.Set("notification", EncodeNotification(e.Notification))
	case sdk.NotificationClick:
		o.Set("notification", EncodeNotification(e.Notification))
		res := NewObject()
		res.SetIf(e.Result.ActionID != "", "actionId", e.Result.ActionID)
		res.SetIf(e.Result.URL != "", "url", e.Result.URL)
		o.Set("result", res)
	case sdk.InAppMessageLifecycle:
		o.Set("message", encodeMessage(e.Message))
	case sdk.InAppMessageClick:
		o.Set("message", encodeMessage(e.Message))
		res := NewObject()
		res.SetIf(e.Result.ActionID != "", "actionId", e.Result.ActionID)
		res.SetIf(e.Result.URLTarget != "", "urlTarget", e.Result.URLTarget)
		res.SetIf(e.Result.URL != "", "url", e.Result.URL)
		res.Set("closingMessage", e.Result.ClosingMessage)
		o.Set("result", res)
	case sdk.RawEvent:
		o = FromMap(e.Fields)
	}
	return Envelope{Category: ev.Category(), Fields: o}
}

// EncodeNotification encodes a notification. Only notificationId is always
// present; every other field is omitted when unset.
func EncodeNotification(n sdk.Notification) *Object {
	o := NewObject()
	o.Set("notificationId", n.NotificationID)
	o.SetIf(n.Body != "", "body", n.Body)
	o.SetIf(n.Title != "", "title", n.Title)
	o.SetIf(n.Sound != "", "sound", n.Sound)
	o.SetIf(n.LaunchURL != "", "launchURL", n.LaunchURL)
	o.SetIf(n.RawPayload != "", "rawPayload", n.RawPayload)
	if len(n.ActionButtons) > 0 {
		buttons := make([]any, len(n.ActionButtons))
		for i, b := range n.ActionButtons {
			bo := NewObject()
			bo.Set("id", b.ID)
			bo.Set("text", b.Text)
			bo.SetIf(b.Icon != "", "icon", b.Icon)
			buttons[i] = bo
		}
		o.Set("actionButtons", buttons)
	}
	if len(n.AdditionalData) > 0 {
		o.Set("additionalData", n.AdditionalData)
	}

	o.SetIf(n.GroupKey != "", "groupKey", n.GroupKey)
	o.SetIf(n.GroupMessage != "", "groupMessage", n.GroupMessage)
	o.SetIf(n.LedColor != "", "ledColor", n.LedColor)
	setInt(o, "priority", n.Priority)
	o.SetIf(n.SmallIcon != "", "smallIcon", n.SmallIcon)
	o.SetIf(n.LargeIcon != "", "largeIcon", n.LargeIcon)
	o.SetIf(n.BigPicture != "", "bigPicture", n.BigPicture)
	o.SetIf(n.CollapseID != "", "collapseId", n.CollapseID)
	o.SetIf(n.FromProjectNumber != "", "fromProjectNumber", n.FromProjectNumber)
	o.SetIf(n.SmallIconAccentColor != "", "smallIconAccentColor", n.SmallIconAccentColor)
	setInt(o, "lockScreenVisibility", n.LockScreenVisibility)
	setInt(o, "androidNotificationId", n.AndroidNotificationID)

	setInt(o, "badge", n.Badge)
	setInt(o, "badgeIncrement", n.BadgeIncrement)
	o.SetIf(n.Category != "", "category", n.Category)
	o.SetIf(n.ThreadID != "", "threadId", n.ThreadID)
	o.SetIf(n.Subtitle != "", "subtitle", n.Subtitle)
	o.SetIf(n.TemplateID != "", "templateId", n.TemplateID)
	o.SetIf(n.TemplateName != "", "templateName", n.TemplateName)
	if len(n.Attachments) > 0 {
		o.Set("attachments", n.Attachments)
	}
	o.SetIf(n.MutableContent, "mutableContent", true)
	o.SetIf(n.ContentAvailable, "contentAvailable", true)
	if n.RelevanceScore != nil {
		o.Set("relevanceScore", *n.RelevanceScore)
	}
	o.SetIf(n.InterruptionLevel != "", "interruptionLevel", n.InterruptionLevel)
	return o
}

func encodePushState(s sdk.PushSubscriptionState) *Object {
	o := NewObject()
	if s.ID != nil {
		o.Set("id", *s.ID)
	}
	if s.Token != nil {
		o.Set("token", *s.Token)
	}
	o.Set("optedIn", s.OptedIn)
	return o
}

func encodeEmailState(s sdk.EmailSubscriptionState) *Object {
	o := NewObject()
	if s.ID != nil {
		o.Set("id", *s.ID)
	}
	o.Set("emailAddress", s.EmailAddress)
	o.Set("isSubscribed", s.IsSubscribed)
	return o
}

func encodeSmsState(s sdk.SmsSubscriptionState) *Object {
	o := NewObject()
	if s.ID != nil {
		o.Set("id", *s.ID)
	}
	o.Set("smsNumber", s.SmsNumber)
	o.Set("isSubscribed", s.IsSubscribed)
	return o
}

func encodeMessage(m sdk.InAppMessage) *Object {
	return NewObject().Set("messageId", m.MessageID)
}

func optString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func setInt(o *Object, key string, v *int) {
	if v != nil {
		o.Set(key, int64(*v))
	}
}
