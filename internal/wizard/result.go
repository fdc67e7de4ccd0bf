// Package wizard implements the multi-step configuration flows: the setup
// flow collecting API credentials and image policy, the plant flow that
// searches, disambiguates and configures one plant record, and the options
// flow editing the image policy afterwards.
//
// Every step returns a Result value instead of raising: the caller renders a
// form, finishes, or aborts based on the result kind. No step blocks on
// anything except the single external call it makes.
package wizard

import "plantbook/internal/plant"

// Step identifies the form a flow wants rendered next.
type Step string

const (
	StepCredentials    Step = "credentials"
	StepImageConfig    Step = "image_config"
	StepPlantName      Step = "plant_name"
	StepNoResults      Step = "no_results_found"
	StepSelectPlant    Step = "select_plant"
	StepConfigurePlant Step = "configure_plant"
	StepReconfigure    Step = "reconfigure_plant"
	StepOptions        Step = "options"
)

// Kind is the outcome class of one step submission.
type Kind int

const (
	// KindForm asks the caller to render (or re-render) a form.
	KindForm Kind = iota
	// KindCreated ends the flow with a newly persisted record or entry.
	KindCreated
	// KindUpdated ends the flow with an existing record or entry replaced.
	KindUpdated
	// KindAborted ends the flow without persisting anything.
	KindAborted
)

// Abort reasons surfaced to the caller.
const (
	AbortReauthRequired    = "reauth_required"
	AbortMissingDependency = "missing_dependency"
	AbortMissingAPICreds   = "missing_api_credentials"
	AbortAlreadyConfigured = "already_configured"
	AbortUnknownDevice     = "unknown_device"
)

// Pseudo-options offered alongside search candidates.
const (
	OptionManualEntry = "manual_entry"
	OptionSearchAgain = "search_again"
)

// Option is one selectable choice in a select form.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Result is the value every wizard step returns. Exactly one of the
// kind-specific fields is meaningful for a given kind; Errors is non-empty
// only when a form is being re-rendered after a failed validation.
type Result struct {
	Kind Kind
	Step Step

	// Errors maps a form section (or "base") to a reason code.
	Errors map[string]string

	// Form state for KindForm results.
	Defaults        *ConfigInput
	Options         []Option
	CategoryOptions []string
	PlantName       string
	ClientID        string

	// Reason is set for KindAborted results.
	Reason string

	// Record is set when a plant flow created or updated a record.
	Record *plant.Record
	// Credentials is set when the setup or options flow finished.
	Credentials *plant.Credentials
}

func formResult(step Step, errors map[string]string) *Result {
	if errors == nil {
		errors = map[string]string{}
	}
	return &Result{Kind: KindForm, Step: step, Errors: errors}
}

func abortResult(reason string) *Result {
	return &Result{Kind: KindAborted, Reason: reason}
}
