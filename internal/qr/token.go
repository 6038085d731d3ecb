// Package qr implements the handoff token codec. A token is a compact
// JSON record identifying which loan (and, for returns, which projector)
// a physical scan refers to. Tokens are derivable from current loan state
// at any time and are never the system of record.
package qr

import (
	"encoding/json"
	"strings"
)

// Kind discriminates the two token shapes.
type Kind string

const (
	KindAssignment Kind = "assignment"
	KindReturn     Kind = "return"
)

// Token is the tagged union carried inside a QR image.
// ProjectorID is set only for return tokens and is advisory: consumers
// must re-derive the authoritative projector from the loan record before
// mutating state.
type Token struct {
	Kind        Kind   `json:"kind"`
	LoanID      string `json:"loan_id"`
	ProjectorID string `json:"projector_id,omitempty"`
	UserID      string `json:"user_id,omitempty"`
}

// NewAssignmentToken builds the token shown while a loan is pending.
func NewAssignmentToken(loanID, userID string) Token {
	return Token{Kind: KindAssignment, LoanID: loanID, UserID: userID}
}

// NewReturnToken builds the token shown once a loan is approved.
func NewReturnToken(loanID, projectorID, userID string) Token {
	return Token{Kind: KindReturn, LoanID: loanID, ProjectorID: projectorID, UserID: userID}
}

// Encode serializes the token to its wire form.
func (t Token) Encode() (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Decode parses scanned text into a token. Text that is not JSON is
// treated as a bare loan id and yields an assignment token, matching the
// legacy scanner behaviour. Structured payloads must decode into one of
// the two known shapes completely or fail with ErrMalformed; partially
// populated tokens are never returned.
func Decode(payload string) (Token, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return Token{}, ErrMalformed
	}

	if !strings.HasPrefix(payload, "{") {
		return Token{Kind: KindAssignment, LoanID: payload}, nil
	}

	var tok Token
	if err := json.Unmarshal([]byte(payload), &tok); err != nil {
		return Token{}, ErrMalformed
	}

	switch tok.Kind {
	case KindAssignment:
		if tok.LoanID == "" {
			return Token{}, ErrMalformed
		}
	case KindReturn:
		if tok.LoanID == "" || tok.ProjectorID == "" {
			return Token{}, ErrMalformed
		}
	default:
		return Token{}, ErrMalformed
	}
	return tok, nil
}
