package command

// Standard maps the current command names onto native operations.
var Standard = map[string]Spec{
	"init":        {Op: "init", Args: []ArgKind{ArgString}},
	"login":       {Op: "login", Args: []ArgKind{ArgString}},
	"logout":      {Op: "logout"},
	"setLanguage": {Op: "setLanguage", Args: []ArgKind{ArgString}},

	"addAliases":    {Op: "addAliases", Args: []ArgKind{ArgStringMap}},
	"removeAliases": {Op: "removeAliases", Args: []ArgKind{ArgStrings}},
	"addTags":       {Op: "addTags", Args: []ArgKind{ArgStringMap}},
	"removeTags":    {Op: "removeTags", Args: []ArgKind{ArgStrings}},
	"getTags":       {Op: "getTags"},
	"addEmail":      {Op: "addEmail", Args: []ArgKind{ArgString}},
	"removeEmail":   {Op: "removeEmail", Args: []ArgKind{ArgString}},
	"addSms":        {Op: "addSms", Args: []ArgKind{ArgString}},
	"removeSms":     {Op: "removeSms", Args: []ArgKind{ArgString}},

	"getOnesignalId": {Op: "getOnesignalId"},
	"getExternalId":  {Op: "getExternalId"},

	"optInPushSubscription":      {Op: "optInPushSubscription"},
	"optOutPushSubscription":     {Op: "optOutPushSubscription"},
	"getPushSubscriptionId":      {Op: "getPushSubscriptionId"},
	"getPushSubscriptionToken":   {Op: "getPushSubscriptionToken"},
	"getPushSubscriptionOptedIn": {Op: "getPushSubscriptionOptedIn"},

	"requestPermission":                   {Op: "requestPermission", Args: []ArgKind{ArgBool}},
	"canRequestPermission":                {Op: "canRequestPermission"},
	"getPermissionInternal":               {Op: "getPermissionInternal"},
	"registerForProvisionalAuthorization": {Op: "registerForProvisionalAuthorization"},
	"clearAllNotifications":               {Op: "clearAllNotifications"},
	"removeNotification":                  {Op: "removeNotification", Args: []ArgKind{ArgInt}},
	"removeGroupedNotifications":          {Op: "removeGroupedNotifications", Args: []ArgKind{ArgString}},

	"addTriggers":    {Op: "addTriggers", Args: []ArgKind{ArgStringMap}},
	"removeTriggers": {Op: "removeTriggers", Args: []ArgKind{ArgStrings}},
	"clearTriggers":  {Op: "clearTriggers"},
	"setPaused":      {Op: "setPaused", Args: []ArgKind{ArgBool}},
	"isPaused":       {Op: "isPaused"},

	"addOutcome":          {Op: "addOutcome", Args: []ArgKind{ArgString}},
	"addUniqueOutcome":    {Op: "addUniqueOutcome", Args: []ArgKind{ArgString}},
	"addOutcomeWithValue": {Op: "addOutcomeWithValue", Args: []ArgKind{ArgString, ArgNumber}},

	"setLogLevel":               {Op: "setLogLevel", Args: []ArgKind{ArgInt}},
	"setAlertLevel":             {Op: "setAlertLevel", Args: []ArgKind{ArgInt}},
	"setLocationShared":         {Op: "setLocationShared", Args: []ArgKind{ArgBool}},
	"isLocationShared":          {Op: "isLocationShared"},
	"requestLocationPermission": {Op: "requestLocationPermission"},
	"setPrivacyConsentRequired": {Op: "setPrivacyConsentRequired", Args: []ArgKind{ArgBool}},
	"setPrivacyConsentGiven":    {Op: "setPrivacyConsentGiven", Args: []ArgKind{ArgBool}},

	"enterLiveActivity": {Op: "enterLiveActivity", Args: []ArgKind{ArgString, ArgString}},
	"exitLiveActivity":  {Op: "exitLiveActivity", Args: []ArgKind{ArgString}},
}

// Legacy maps command names from earlier SDK generations onto the current
// native operations.
var Legacy = map[string]Spec{
	"sendTags":             {Op: "addTags", Args: []ArgKind{ArgStringMap}},
	"sendTag":              {Op: "addTags", Args: []ArgKind{ArgString, ArgScalar}, Rewrite: singleTag},
	"deleteTags":           {Op: "removeTags", Args: []ArgKind{ArgStrings}},
	"sendOutcome":          {Op: "addOutcome", Args: []ArgKind{ArgString}},
	"sendUniqueOutcome":    {Op: "addUniqueOutcome", Args: []ArgKind{ArgString}},
	"sendOutcomeWithValue": {Op: "addOutcomeWithValue", Args: []ArgKind{ArgString, ArgNumber}},
	"setExternalUserId":    {Op: "login", Args: []ArgKind{ArgString}},
	"removeExternalUserId": {Op: "logout"},

	"removeTriggersForKeys":  {Op: "removeTriggers", Args: []ArgKind{ArgStrings}},
	"pauseInAppMessages":     {Op: "setPaused", Args: []ArgKind{ArgBool}},
	"isInAppMessagingPaused": {Op: "isPaused"},

	"setRequiresPrivacyConsent":     {Op: "setPrivacyConsentRequired", Args: []ArgKind{ArgBool}},
	"setRequiresUserPrivacyConsent": {Op: "setPrivacyConsentRequired", Args: []ArgKind{ArgBool}},
	"setPrivacyConsent":             {Op: "setPrivacyConsentGiven", Args: []ArgKind{ArgBool}},
	"provideUserConsent":            {Op: "setPrivacyConsentGiven", Args: []ArgKind{ArgBool}},

	"promptLocation":              {Op: "requestLocationPermission"},
	"clearOneSignalNotifications": {Op: "clearAllNotifications"},
	// The old prompt took only a response callback and never fell back to
	// the settings screen.
	"promptForPushNotificationsWithUserResponse": {Op: "requestPermission", Rewrite: noFallback},
}

func singleTag(args []any) []any {
	return []any{map[string]string{args[0].(string): args[1].(string)}}
}

// Wrapper identifies the library that initializes the native SDK. The
// native SDK reports it alongside its own version.
type Wrapper struct {
	Type    string
	Version string
}

// Init returns the init command with the wrapper type and version appended
// to the app id.
func (w Wrapper) Init() Spec {
	spec := Standard["init"]
	spec.Rewrite = func(args []any) []any {
		return append(args, w.Type, w.Version)
	}
	return spec
}

func noFallback([]any) []any {
	return []any{false}
}

// RegisterStandard forwards every Standard and Legacy command on d.
func RegisterStandard(d *Dispatcher) {
	for name, spec := range Standard {
		d.Forward(name, spec)
	}
	for name, spec := range Legacy {
		d.Forward(name, spec)
	}
}
