package notification

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/mailguard/mailguard-server/cmd/models"
	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"gopkg.in/gomail.v2"
	"gorm.io/gorm"
)

// Notifier delivers stored notifications to the outside world over
// Expo push and SMTP. Delivery is strictly best-effort: the
// notification row is the source of truth and is already committed
// before Dispatch runs, so every failure here is logged and swallowed.
type Notifier struct {
	db         *gorm.DB
	expoClient *expo.PushClient
}

func NewNotifier(db *gorm.DB) *Notifier {
	return &Notifier{
		db:         db,
		expoClient: expo.NewPushClient(nil),
	}
}

func (n *Notifier) Dispatch(device *models.Device, notification *models.Notification) {
	if device.PushNotifications {
		if err := n.sendPush(device, notification); err != nil {
			log.Printf("Error sending push notification %d: %v", notification.ID, err)
		}
	}
	if device.EmailNotifications {
		if err := n.sendEmail(device, notification); err != nil {
			log.Printf("Error sending email notification %d: %v", notification.ID, err)
		}
	}
}

func (n *Notifier) sendPush(device *models.Device, notification *models.Notification) error {
	var tokens []models.PushToken
	if err := n.db.Where("account_id = ?", device.OwnerID).Find(&tokens).Error; err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}

	var validTokens []expo.ExponentPushToken
	for _, t := range tokens {
		pushToken, err := expo.NewExponentPushToken(t.Token)
		if err != nil {
			log.Printf("Invalid push token format %s: %v", t.Token, err)
			continue
		}
		validTokens = append(validTokens, pushToken)
	}
	if len(validTokens) == 0 {
		return nil
	}

	pushMessage := &expo.PushMessage{
		To:       validTokens,
		Title:    "Mail Guard",
		Body:     notification.Message,
		Sound:    "default",
		Priority: expo.DefaultPriority,
		Data: map[string]string{
			"notification_type": notification.NotificationType,
			"device_id":         fmt.Sprintf("%d", notification.DeviceID),
		},
	}

	response, err := n.expoClient.Publish(pushMessage)
	if err != nil {
		return fmt.Errorf("failed to publish notification: %v", err)
	}
	if validationErr := response.ValidateResponse(); validationErr != nil {
		return fmt.Errorf("push notification rejected: %v", validationErr)
	}
	return nil
}

func (n *Notifier) sendEmail(device *models.Device, notification *models.Notification) error {
	smtpHost := os.Getenv("SMTP_HOST")
	smtpPort := os.Getenv("SMTP_PORT")
	smtpUser := os.Getenv("SMTP_USER")
	smtpPass := os.Getenv("SMTP_PASSWORD")

	// Email is optional; without SMTP configuration it is silently off.
	if smtpHost == "" || device.Email == "" {
		return nil
	}

	port, err := strconv.Atoi(smtpPort)
	if err != nil {
		return fmt.Errorf("invalid SMTP port: %v", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", smtpUser)
	m.SetHeader("To", device.Email)
	m.SetHeader("Subject", fmt.Sprintf("Mail Guard: %s", notification.NotificationType))
	m.SetBody("text/plain", notification.Message)

	d := gomail.NewDialer(smtpHost, port, smtpUser, smtpPass)
	return d.DialAndSend(m)
}
