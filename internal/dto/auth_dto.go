package dto

import "time"

// ChallengeRequest asks for a sign-in message for a wallet.
type ChallengeRequest struct {
	Address string `json:"address" validate:"required,eth_addr"`
}

// ChallengeResponse carries the message the wallet must sign.
type ChallengeResponse struct {
	Address   string    `json:"address"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// VerifyRequest proves control of a wallet with a personal_sign signature.
type VerifyRequest struct {
	Address   string `json:"address" validate:"required,eth_addr"`
	Signature string `json:"signature" validate:"required,hexadecimal"`
}

// SessionResponse is issued after a successful wallet sign-in.
type SessionResponse struct {
	Token     string    `json:"token"`
	Address   string    `json:"address"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}
