package models

import (
	"fmt"
	"strings"
	"time"
)

// OverdraftPolicy decides whether a debit may take a balance below zero.
type OverdraftPolicy int

const (
	// RejectOverdraft fails debits that would leave a negative balance.
	RejectOverdraft OverdraftPolicy = iota
	// AllowOverdraft lets balances go negative.
	AllowOverdraft
)

// ParseOverdraftPolicy maps the config values "reject" and "allow".
func ParseOverdraftPolicy(s string) (OverdraftPolicy, error) {
	switch strings.ToLower(s) {
	case "", "reject":
		return RejectOverdraft, nil
	case "allow":
		return AllowOverdraft, nil
	default:
		return RejectOverdraft, fmt.Errorf("unknown overdraft policy %q", s)
	}
}

func (p OverdraftPolicy) String() string {
	if p == AllowOverdraft {
		return "allow"
	}
	return "reject"
}

// Account holds a balance. Its ID is assigned by the store and never reused.
type Account struct {
	// ID is the store-assigned account number.
	ID int64

	// Name is the label chosen by the owner (e.g. "Savings").
	Name string

	// Balance is only changed through Credit and Debit.
	Balance Amount

	// CreatedAt is when the account was opened.
	CreatedAt time.Time
}

// Credit increases the balance by a. a must not be negative, and the new
// balance must stay representable.
func (a *Account) Credit(amount Amount) error {
	if amount.IsNegative() {
		return NewError(KindDomainInvariantViolation, "cannot credit a negative amount").
			With("account", a.ID).With("amount", amount.String())
	}
	next := a.Balance.Add(amount)
	if !next.Representable() {
		return outOfRange(a, "credit", amount)
	}
	a.Balance = next
	return nil
}

// Debit decreases the balance by a. a must not be negative. Under
// RejectOverdraft it fails with InsufficientFunds, leaving the balance
// untouched, if the result would be negative. A result that is not
// representable fails with DomainInvariantViolation under either policy.
func (a *Account) Debit(amount Amount, policy OverdraftPolicy) error {
	if amount.IsNegative() {
		return NewError(KindDomainInvariantViolation, "cannot debit a negative amount").
			With("account", a.ID).With("amount", amount.String())
	}
	next := a.Balance.Sub(amount)
	if policy == RejectOverdraft && next.IsNegative() {
		return NewError(KindInsufficientFunds, "balance %s does not cover %s", a.Balance, amount).
			With("account", a.ID)
	}
	if !next.Representable() {
		return outOfRange(a, "debit", amount)
	}
	a.Balance = next
	return nil
}

func outOfRange(a *Account, op string, amount Amount) error {
	return NewError(KindDomainInvariantViolation, "%s of %s would take balance %s out of range", op, amount, a.Balance).
		With("account", a.ID).With("amount", amount.String())
}
