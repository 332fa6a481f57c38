package services

import (
	"crypto/sha256"
	"encoding/base32"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// otpPeriod is the validity window of an issued code, in seconds.
const otpPeriod = 300

// OTPService issues and verifies 6-digit login codes. Codes are TOTP values
// over a per-phone secret derived from the server secret, so nothing needs
// to be stored between issue and verify.
type OTPService struct {
	secret string
}

func NewOTPService(secret string) *OTPService {
	return &OTPService{secret: secret}
}

func (s *OTPService) phoneSecret(phone string) string {
	sum := sha256.Sum256([]byte(s.secret + ":" + phone))
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(sum[:])
}

func otpOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    otpPeriod,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// Issue returns the code currently valid for phone.
func (s *OTPService) Issue(phone string) (string, error) {
	return totp.GenerateCodeCustom(s.phoneSecret(phone), time.Now(), otpOpts())
}

// Verify reports whether code is valid for phone within the current window
// (one step of skew either way).
func (s *OTPService) Verify(phone, code string) bool {
	ok, err := totp.ValidateCustom(code, s.phoneSecret(phone), time.Now(), otpOpts())
	return err == nil && ok
}
