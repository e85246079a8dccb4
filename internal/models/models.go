package models

import "time"

// User represents an account in the system
type User struct {
	ID             string
	Name           string
	Email          string
	BirthDate      time.Time
	PasswordHash   string
	HasPhoto       bool
	PhotoURL       *string
	Heartcode      string
	Connected      bool
	PushToken      *string
	Streak         int
	LastStreakDate *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Couple represents two connected users
type Couple struct {
	ID             string    `json:"id"`
	UserAID        string    `json:"userAId"`
	UserBID        string    `json:"userBId"`
	ConnectionCode string    `json:"codigoConexao"`
	CreatedAt      time.Time `json:"createdAt"`
}

// PartnerOf returns the other member of the couple
func (c *Couple) PartnerOf(userID string) string {
	if c.UserAID == userID {
		return c.UserBID
	}
	return c.UserAID
}

// HasMember reports whether userID is one of the two members
func (c *Couple) HasMember(userID string) bool {
	return c.UserAID == userID || c.UserBID == userID
}

// VerificationCode is a short-lived email OTP
type VerificationCode struct {
	ID        string
	Email     string
	Code      string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the code is past its expiry at now
func (v *VerificationCode) Expired(now time.Time) bool {
	return now.After(v.ExpiresAt)
}

// RouletteEntry is one logged daily activity
type RouletteEntry struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	ActivityDate    time.Time `json:"-"`
	Activity        string    `json:"activity"`
	LockDuration    int       `json:"lockDuration"`
	NextAvailableAt time.Time `json:"nextAvailableAt"`
	CreatedAt       time.Time `json:"createdAt"`
}

// AppUsage is the foreground time of one app during one local day
type AppUsage struct {
	PackageName  string    `json:"packageName"`
	AppName      string    `json:"appName"`
	ForegroundMs int64     `json:"totalTimeInForeground"`
	LastTimeUsed time.Time `json:"lastTimeUsed"`
	SystemApp    bool      `json:"isSystemApp"`
}
