package handler

import (
	"strings"

	"namereg/pkg/domain"
	dErrors "namereg/pkg/domain-errors"
)

// ValueRequest is the body of register, renew and withdraw. Value is the
// wei attached to the call; an absent value means zero.
type ValueRequest struct {
	Value string `json:"value"`

	parsedValue domain.Amount
}

// Validate implements httputil.Validatable.
func (r *ValueRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	value, err := parseValue(r.Value)
	if err != nil {
		return err
	}
	r.parsedValue = value
	return nil
}

func (r *ValueRequest) ParsedValue() domain.Amount {
	return r.parsedValue
}

// TransferRequest is the body of POST /names/{name}/transfer.
type TransferRequest struct {
	Recipient string `json:"recipient"`
	Value     string `json:"value"`

	parsedRecipient domain.Identity
	parsedValue     domain.Amount
}

// Validate implements httputil.Validatable. The null identity parses; the
// service rejects it with InvalidRecipient.
func (r *TransferRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Recipient = strings.TrimSpace(r.Recipient)
	if r.Recipient == "" {
		return dErrors.New(dErrors.CodeValidation, "recipient is required")
	}
	recipient, err := domain.ParseIdentity(r.Recipient)
	if err != nil {
		return err
	}
	value, err := parseValue(r.Value)
	if err != nil {
		return err
	}
	r.parsedRecipient = recipient
	r.parsedValue = value
	return nil
}

func (r *TransferRequest) ParsedRecipient() domain.Identity {
	return r.parsedRecipient
}

func (r *TransferRequest) ParsedValue() domain.Amount {
	return r.parsedValue
}

func parseValue(s string) (domain.Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.Amount{}, nil
	}
	return domain.ParseAmount(s)
}
