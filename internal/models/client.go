package models

import "time"

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

// Client is an account holder, identified by its immutable username.
type Client struct {
	// ID is the store-assigned surrogate key. New clients never carry one.
	ID int64

	// Username is unique across all clients and never changes.
	Username string

	// BirthDate is a calendar date at midnight UTC.
	BirthDate time.Time

	// CreatedAt is when the client was registered.
	CreatedAt time.Time
}

// Date truncates t to its calendar date in UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, NewError(KindInvalidBirthDate, "invalid date %q, want YYYY-MM-DD", s).With("date", s)
	}
	return t, nil
}
