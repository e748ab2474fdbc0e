package models

import (
	"fmt"
	"strconv"
	"strings"
)

// BuyerEmail builds the synthetic gateway identifier for a chat user. It is
// the join key between chat users and payment events, not a real mailbox.
func BuyerEmail(userID int64) string {
	return fmt.Sprintf("%d@t.me", userID)
}

// UserIDFromBuyerEmail extracts the chat user ID back out of a synthetic
// buyer email. Returns an error for addresses that do not follow the
// {userId}@t.me convention.
func UserIDFromBuyerEmail(email string) (int64, error) {
	local, _, found := strings.Cut(email, "@")
	if !found {
		return 0, fmt.Errorf("buyer email %q has no local part", email)
	}
	id, err := strconv.ParseInt(local, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("buyer email %q is not a user id: %w", email, err)
	}
	return id, nil
}
