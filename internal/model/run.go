package model

import "time"

// RunStatus is the state of an insight run.
type RunStatus string

const (
	RunStatusIdle              RunStatus = "idle"
	RunStatusCheckingBalance   RunStatus = "checking_balance"
	RunStatusToppingUp         RunStatus = "topping_up"
	RunStatusSelectingProvider RunStatus = "selecting_provider"
	RunStatusInvoking          RunStatus = "invoking"
	RunStatusPersisting        RunStatus = "persisting"
	RunStatusDone              RunStatus = "done"
	RunStatusFailed            RunStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s RunStatus) Terminal() bool {
	return s == RunStatusDone || s == RunStatusFailed
}

// Run is the persisted record of one insight request.
type Run struct {
	ID        string         `json:"id"`
	RootHash  string         `json:"root_hash"`
	FileName  string         `json:"file_name"`
	Status    RunStatus      `json:"status"`
	Result    *InsightResult `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
