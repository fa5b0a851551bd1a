package domain

import (
	"fmt"
	"regexp"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// ValidatePhone checks an E.164-ish phone number (7-15 digits, optional +).
func ValidatePhone(phone string) error {
	if phone == "" {
		return fmt.Errorf("phone is required")
	}
	if !phonePattern.MatchString(phone) {
		return fmt.Errorf("invalid phone format")
	}
	return nil
}

// ValidatePositiveAmount rejects zero and negative cent amounts.
func ValidatePositiveAmount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive, got %d", amount)
	}
	return nil
}

// ValidateAmountRange checks an amount against inclusive [min, max] bounds.
func ValidateAmountRange(amount, min, max int64) error {
	if err := ValidatePositiveAmount(amount); err != nil {
		return err
	}
	if amount < min || amount > max {
		return fmt.Errorf("amount out of range [%d, %d]", min, max)
	}
	return nil
}
