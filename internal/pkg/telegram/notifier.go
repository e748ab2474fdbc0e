package telegram

import (
	"github.com/gofiber/fiber/v2/log"
)

// Notifier sends operational notifications to the administrative recipient.
type Notifier struct {
	client  ChatClient
	adminID int64
}

// NewNotifier creates a notifier. adminID may be zero when no admin is
// configured; notifications are then dropped with a warning.
func NewNotifier(client ChatClient, adminID int64) *Notifier {
	return &Notifier{client: client, adminID: adminID}
}

// NotifyAdmin delivers a message to the admin, best effort.
func (n *Notifier) NotifyAdmin(text string) {
	if n.adminID == 0 {
		log.Warn("[Notifier] admin ID not configured, dropping admin notification")
		return
	}
	if err := n.client.SendMessage(n.adminID, text); err != nil {
		log.Errorf("[Notifier] failed to notify admin: %v", err)
	}
}

// NotifyUser delivers a message to a user, best effort.
func (n *Notifier) NotifyUser(userID int64, text string) {
	if err := n.client.SendMessage(userID, text); err != nil {
		log.Errorf("[Notifier] failed to notify user %d: %v", userID, err)
	}
}
