package models

// Account is the caller's profile as held by the identity store. Credits is
// the snapshot read at request time.
type Account struct {
	ID      string `json:"id" db:"id"`
	Credits int    `json:"credits" db:"credits"`
}

// HasCredits reports whether the snapshot still carries a spendable credit.
func (a *Account) HasCredits() bool {
	return a != nil && a.Credits > 0
}
