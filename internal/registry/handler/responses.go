package handler

import (
	"namereg/internal/events"
	"namereg/internal/registry/models"
)

// RecordResponse is returned by the mutating name endpoints.
type RecordResponse struct {
	Name      string `json:"name"`
	NameHash  string `json:"name_hash"`
	Owner     string `json:"owner"`
	ExpiresAt int64  `json:"expires_at"`
}

func FromRecord(rec *models.Record) *RecordResponse {
	return &RecordResponse{
		Name:      rec.Name,
		NameHash:  models.HashName(rec.Name).String(),
		Owner:     rec.Owner.String(),
		ExpiresAt: models.Unix(rec.ExpiresAt),
	}
}

// NameResponse is the combined view of GET /names/{name}. Owner is the null
// identity when the name is not held.
type NameResponse struct {
	Name      string `json:"name"`
	NameHash  string `json:"name_hash"`
	Valid     bool   `json:"valid"`
	Owner     string `json:"owner"`
	Available bool   `json:"available"`
	ExpiresAt int64  `json:"expires_at"`
}

// AvailabilityResponse reports availability. Valid is false for names that
// can never be registered, which still report available.
type AvailabilityResponse struct {
	Name      string `json:"name"`
	Valid     bool   `json:"valid"`
	Available bool   `json:"available"`
}

type ExpiryResponse struct {
	Name      string `json:"name"`
	ExpiresAt int64  `json:"expires_at"`
}

type ReverseResponse struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
}

type WithdrawResponse struct {
	AmountWei string `json:"amount_wei"`
}

// StatusResponse is the body of GET /registry.
type StatusResponse struct {
	Admin                string `json:"admin"`
	BalanceWei           string `json:"balance_wei"`
	RegistrationFeeWei   string `json:"registration_fee_wei"`
	RenewalFeeWei        string `json:"renewal_fee_wei"`
	RegistrationDuration int64  `json:"registration_duration_seconds"`
}

func FromStatus(s *models.Status) *StatusResponse {
	return &StatusResponse{
		Admin:                s.Admin.String(),
		BalanceWei:           s.Balance.String(),
		RegistrationFeeWei:   s.RegistrationFee.String(),
		RenewalFeeWei:        s.RenewalFee.String(),
		RegistrationDuration: int64(s.Duration.Seconds()),
	}
}

type EventsResponse struct {
	Events []events.Payload `json:"events"`
}
