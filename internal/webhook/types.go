// Package webhook delivers shield notifications through the n8n email
// workflows.
package webhook

import "time"

// CheckInReminder asks an inactive user to confirm they are well.
type CheckInReminder struct {
	UserID          string `json:"user_id"`
	Email           string `json:"email"`
	Name            string `json:"name"`
	CheckInURL      string `json:"check_in_url"`
	MonthsInactive  int    `json:"months_inactive"`
	ThresholdMonths int    `json:"threshold_months"`
}

// GuardianAccessNotice carries a guardian's emergency access link.
type GuardianAccessNotice struct {
	OwnerName     string    `json:"owner_name"`
	GuardianName  string    `json:"guardian_name"`
	GuardianEmail string    `json:"guardian_email"`
	AccessURL     string    `json:"access_url"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// VerificationCodeNotice carries the secondary code. The workflow routes it
// over a different channel than the access link.
type VerificationCodeNotice struct {
	GuardianName     string `json:"guardian_name"`
	GuardianEmail    string `json:"guardian_email"`
	VerificationCode string `json:"verification_code"`
}
