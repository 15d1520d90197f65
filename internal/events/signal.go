// Package events provides the local broadcast bus used by other components
// on the same machine to push signals into the dispatcher: settings
// updates, app state transitions and tenant identity changes. The bus has
// two ingress surfaces, an in-process API and a unix socket listener, so
// the host app can reach it without linking against this code.
package events

// Kind identifies a broadcast signal type.
type Kind string

const (
	// KindSettingsUpdated announces that notification settings changed.
	// Payload optionally carries the new raw settings to apply directly;
	// with no payload the receiver re-fetches from the backend.
	KindSettingsUpdated Kind = "settings_updated"

	// KindAppState announces a foreground/background transition of the host app.
	KindAppState Kind = "app_state"

	// KindTenantChanged announces the restaurant identity used for the
	// socket connection. An empty tenant means logout.
	KindTenantChanged Kind = "tenant_changed"
)

// AppState is the host application's lifecycle state.
type AppState string

const (
	AppStateForeground AppState = "foreground"
	AppStateBackground AppState = "background"
)

// Signal is a single broadcast message. Fields beyond Kind are populated
// depending on the kind.
type Signal struct {
	Kind    Kind           `json:"signal"`
	Payload map[string]any `json:"payload,omitempty"` // settings_updated only
	State   AppState       `json:"state,omitempty"`   // app_state only
	Tenant  string         `json:"tenant,omitempty"`  // tenant_changed only
}
