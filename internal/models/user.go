package models

// User is the local, ephemeral identity created at OTP verification. The
// chat service keeps its own user object keyed by the canonical account key.
type User struct {
	ID          string `json:"id"`
	PhoneNumber string `json:"phone_number"`
	DisplayName string `json:"display_name"`
}

type OTPRequest struct {
	Phone string `json:"phone"`
}

type VerifyRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
	Name  string `json:"name"`
}

type AuthResponse struct {
	Token     string `json:"token"`
	User      User   `json:"user"`
	ChatReady bool   `json:"chat_ready"`
}
