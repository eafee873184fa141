package redis

import (
	"encoding/json"
	"errors"
	"fmt"

	"quorumgate/pkg/endpoint"
	"quorumgate/pkg/models"
)

// Error codes carried in Reply.Error.
const (
	codeLateArrival = "LATE_ARRIVAL"
	codeUnknownTag  = "UNKNOWN_TAG"
	codeInternal    = "INTERNAL"
)

// Envelope is the message a participant pushes onto the inbox.
// ReplyTo is the list the coordinator answers on and doubles as the sender address.
type Envelope struct {
	Sender  string `json:"sender"`
	ReplyTo string `json:"reply_to"`
	Tag     string `json:"tag"`
}

// Reply is pushed onto an envelope's ReplyTo list. Exactly one field is set.
type Reply struct {
	Status models.Status `json:"status,omitempty"`
	Error  string        `json:"error,omitempty"`
}

func decodeEnvelope(raw string) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if env.ReplyTo == "" {
		return Envelope{}, errors.New("envelope has no reply_to")
	}
	return env, nil
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, endpoint.ErrLateArrival):
		return codeLateArrival
	case errors.Is(err, endpoint.ErrUnknownTag):
		return codeUnknownTag
	default:
		return codeInternal
	}
}

// Err maps the reply's error code back to the endpoint's sentinel.
func (r Reply) Err() error {
	switch r.Error {
	case "":
		return nil
	case codeLateArrival:
		return endpoint.ErrLateArrival
	case codeUnknownTag:
		return endpoint.ErrUnknownTag
	default:
		return fmt.Errorf("coordinator error: %s", r.Error)
	}
}
