package natssdk

import (
	"encoding/json"
	"fmt"

	"github.com/go-drift/pushbridge/pkg/envelope"
	"github.com/go-drift/pushbridge/pkg/errors"
	"github.com/go-drift/pushbridge/pkg/sdk"
)

// Event payloads use the same field names the bridge uses for envelopes, so
// a host can publish what it would otherwise hand to the plugin.

type wirePushState struct {
	ID      *string `json:"id"`
	Token   *string `json:"token"`
	OptedIn bool    `json:"optedIn"`
}

type wireEmailState struct {
	ID           *string `json:"id"`
	EmailAddress string  `json:"emailAddress"`
	IsSubscribed bool    `json:"isSubscribed"`
}

type wireSmsState struct {
	ID           *string `json:"id"`
	SmsNumber    string  `json:"smsNumber"`
	IsSubscribed bool    `json:"isSubscribed"`
}

type wireButton struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Icon string `json:"icon"`
}

type wireNotification struct {
	NotificationID string         `json:"notificationId"`
	Body           string         `json:"body"`
	Title          string         `json:"title"`
	Sound          string         `json:"sound"`
	LaunchURL      string         `json:"launchURL"`
	RawPayload     string         `json:"rawPayload"`
	ActionButtons  []wireButton   `json:"actionButtons"`
	AdditionalData map[string]any `json:"additionalData"`

	GroupKey              string `json:"groupKey"`
	GroupMessage          string `json:"groupMessage"`
	LedColor              string `json:"ledColor"`
	Priority              *int   `json:"priority"`
	SmallIcon             string `json:"smallIcon"`
	LargeIcon             string `json:"largeIcon"`
	BigPicture            string `json:"bigPicture"`
	CollapseID            string `json:"collapseId"`
	FromProjectNumber     string `json:"fromProjectNumber"`
	SmallIconAccentColor  string `json:"smallIconAccentColor"`
	LockScreenVisibility  *int   `json:"lockScreenVisibility"`
	AndroidNotificationID *int   `json:"androidNotificationId"`

	Badge             *int           `json:"badge"`
	BadgeIncrement    *int           `json:"badgeIncrement"`
	Category          string         `json:"category"`
	ThreadID          string         `json:"threadId"`
	Subtitle          string         `json:"subtitle"`
	TemplateID        string         `json:"templateId"`
	TemplateName      string         `json:"templateName"`
	Attachments       map[string]any `json:"attachments"`
	MutableContent    bool           `json:"mutableContent"`
	ContentAvailable  bool           `json:"contentAvailable"`
	RelevanceScore    *float64       `json:"relevanceScore"`
	InterruptionLevel string         `json:"interruptionLevel"`
}

func (n wireNotification) toSDK() sdk.Notification {
	out := sdk.Notification{
		NotificationID:        n.NotificationID,
		Body:                  n.Body,
		Title:                 n.Title,
		Sound:                 n.Sound,
		LaunchURL:             n.LaunchURL,
		RawPayload:            n.RawPayload,
		AdditionalData:        n.AdditionalData,
		GroupKey:              n.GroupKey,
		GroupMessage:          n.GroupMessage,
		LedColor:              n.LedColor,
		Priority:              n.Priority,
		SmallIcon:             n.SmallIcon,
		LargeIcon:             n.LargeIcon,
		BigPicture:            n.BigPicture,
		CollapseID:            n.CollapseID,
		FromProjectNumber:     n.FromProjectNumber,
		SmallIconAccentColor:  n.SmallIconAccentColor,
		LockScreenVisibility:  n.LockScreenVisibility,
		AndroidNotificationID: n.AndroidNotificationID,
		Badge:                 n.Badge,
		BadgeIncrement:        n.BadgeIncrement,
		Category:              n.Category,
		ThreadID:              n.ThreadID,
		Subtitle:              n.Subtitle,
		TemplateID:            n.TemplateID,
		TemplateName:          n.TemplateName,
		Attachments:           n.Attachments,
		MutableContent:        n.MutableContent,
		ContentAvailable:      n.ContentAvailable,
		RelevanceScore:        n.RelevanceScore,
		InterruptionLevel:     n.InterruptionLevel,
	}
	for _, b := range n.ActionButtons {
		out.ActionButtons = append(out.ActionButtons, sdk.ActionButton{ID: b.ID, Text: b.Text, Icon: b.Icon})
	}
	return out
}

type wireMessage struct {
	MessageID string `json:"messageId"`
}

type wireEvent struct {
	Permission   bool              `json:"permission"`
	Previous     json.RawMessage   `json:"previous"`
	Current      json.RawMessage   `json:"current"`
	Notification *wireNotification `json:"notification"`
	Message      *wireMessage      `json:"message"`
	Result       struct {
		ActionID       string `json:"actionId"`
		URLTarget      string `json:"urlTarget"`
		URL            string `json:"url"`
		ClosingMessage bool   `json:"closingMessage"`
	} `json:"result"`
}

// decodeEvent turns an event payload into the sdk shape for category. A
// NotificationWillDisplay event gets no completion here; the caller attaches
// one. Categories the bridge does not model are returned as sdk.RawEvent.
func decodeEvent(subject string, category sdk.Category, data []byte) (sdk.Event, error) {
	fail := func(expected string, err error) error {
		return &errors.ParseError{Source: subject, Index: -1, Expected: expected, Err: err}
	}

	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fail("event object", err)
	}

	switch category {
	case sdk.PermissionChanged:
		return sdk.PermissionChange{Permission: w.Permission}, nil

	case sdk.PushSubscriptionChanged:
		var prev, cur wirePushState
		if err := unmarshalOptional(w.Previous, &prev); err != nil {
			return nil, fail("push subscription state", err)
		}
		if err := unmarshalOptional(w.Current, &cur); err != nil {
			return nil, fail("push subscription state", err)
		}
		return sdk.PushSubscriptionChange{
			Previous: sdk.PushSubscriptionState{ID: prev.ID, Token: prev.Token, OptedIn: prev.OptedIn},
			Current:  sdk.PushSubscriptionState{ID: cur.ID, Token: cur.Token, OptedIn: cur.OptedIn},
		}, nil

	case sdk.EmailSubscriptionChanged:
		var prev, cur wireEmailState
		if err := unmarshalOptional(w.Previous, &prev); err != nil {
			return nil, fail("email subscription state", err)
		}
		if err := unmarshalOptional(w.Current, &cur); err != nil {
			return nil, fail("email subscription state", err)
		}
		return sdk.EmailSubscriptionChange{
			Previous: sdk.EmailSubscriptionState{ID: prev.ID, EmailAddress: prev.EmailAddress, IsSubscribed: prev.IsSubscribed},
			Current:  sdk.EmailSubscriptionState{ID: cur.ID, EmailAddress: cur.EmailAddress, IsSubscribed: cur.IsSubscribed},
		}, nil

	case sdk.SmsSubscriptionChanged:
		var prev, cur wireSmsState
		if err := unmarshalOptional(w.Previous, &prev); err != nil {
			return nil, fail("sms subscription state", err)
		}
		if err := unmarshalOptional(w.Current, &cur); err != nil {
			return nil, fail("sms subscription state", err)
		}
		return sdk.SmsSubscriptionChange{
			Previous: sdk.SmsSubscriptionState{ID: prev.ID, SmsNumber: prev.SmsNumber, IsSubscribed: prev.IsSubscribed},
			Current:  sdk.SmsSubscriptionState{ID: cur.ID, SmsNumber: cur.SmsNumber, IsSubscribed: cur.IsSubscribed},
		}, nil

	case sdk.UserStateChanged:
		var cur struct {
			OnesignalID *string `json:"onesignalId"`
			ExternalID  *string `json:"externalId"`
		}
		if err := unmarshalOptional(w.Current, &cur); err != nil {
			return nil, fail("user state", err)
		}
		return sdk.UserStateChange{Current: sdk.UserState{OnesignalID: cur.OnesignalID, ExternalID: cur.ExternalID}}, nil

	case sdk.NotificationWillDisplay:
		if w.Notification == nil {
			return nil, fail("notification", fmt.Errorf("missing notification"))
		}
		return sdk.NotificationReceived{Notification: w.Notification.toSDK()}, nil

	case sdk.NotificationClicked:
		if w.Notification == nil {
			return nil, fail("notification", fmt.Errorf("missing notification"))
		}
		return sdk.NotificationClick{
			Notification: w.Notification.toSDK(),
			Result:       sdk.NotificationClickResult{ActionID: w.Result.ActionID, URL: w.Result.URL},
		}, nil

	case sdk.InAppMessageWillDisplay, sdk.InAppMessageDidDisplay,
		sdk.InAppMessageWillDismiss, sdk.InAppMessageDidDismiss:
		if w.Message == nil {
			return nil, fail("message", fmt.Errorf("missing message"))
		}
		return sdk.InAppMessageLifecycle{Stage: category, Message: sdk.InAppMessage{MessageID: w.Message.MessageID}}, nil

	case sdk.InAppMessageClicked:
		if w.Message == nil {
			return nil, fail("message", fmt.Errorf("missing message"))
		}
		return sdk.InAppMessageClick{
			Message: sdk.InAppMessage{MessageID: w.Message.MessageID},
			Result: sdk.InAppMessageClickResult{
				ActionID:       w.Result.ActionID,
				URLTarget:      w.Result.URLTarget,
				URL:            w.Result.URL,
				ClosingMessage: w.Result.ClosingMessage,
			},
		}, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fail("event object", err)
	}
	return sdk.RawEvent{Kind: category, Fields: fields}, nil
}

func unmarshalOptional(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// reply is the host's answer to an invoke request.
type reply struct {
	OK      bool            `json:"ok"`
	Value   json.RawMessage `json:"value,omitempty"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
}

// decodeReply returns the reply value in the envelope value set, or the
// host's failure as a *sdk.NativeError.
func decodeReply(op string, data []byte) (any, error) {
	var r reply
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, sdk.NewNativeError(sdk.CodeInternal, fmt.Sprintf("%s: malformed reply: %v", op, err))
	}
	if !r.OK {
		code := r.Code
		if code == "" {
			code = sdk.CodeInternal
		}
		return nil, sdk.NewNativeError(code, r.Message)
	}
	if len(r.Value) == 0 {
		return nil, nil
	}
	v, err := envelope.ParseValue(r.Value)
	if err != nil {
		return nil, sdk.NewNativeError(sdk.CodeInternal, fmt.Sprintf("%s: malformed reply value: %v", op, err))
	}
	return v, nil
}

// directive is published to a notification's reply subject.
type directive struct {
	Display      bool           `json:"display"`
	Notification map[string]any `json:"notification,omitempty"`
}
