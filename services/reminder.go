// services/reminder.go
package services

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"desupply-backend/models"
	"desupply-backend/utils"

	"github.com/robfig/cron/v3"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"gorm.io/gorm"
)

// ReminderService nudges buyers whose funded invoices come due soon, over
// SMS or WhatsApp.
type ReminderService struct {
	db     *gorm.DB
	client *twilio.RestClient
}

func NewReminderService(db *gorm.DB) *ReminderService {
	// Initialize Twilio client
	accountSid := os.Getenv("TWILIO_ACCOUNT_SID")
	authToken := os.Getenv("TWILIO_AUTH_TOKEN")

	return &ReminderService{
		db: db,
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSid,
			Password: authToken,
		}),
	}
}

func (s *ReminderService) StartScheduler() {
	c := cron.New()

	// Run every day at 9 AM
	if _, err := c.AddFunc("0 9 * * *", s.SendDueReminders); err != nil {
		log.Printf("Failed to schedule payment reminders: %v", err)
		return
	}

	c.Start()
	log.Println("Payment reminder scheduler started")
}

// SendDueReminders messages the buyer of every funded invoice due within the
// next 3 days.
func (s *ReminderService) SendDueReminders() {
	log.Println("Starting payment reminder processing...")

	now := time.Now()
	cutoff := now.AddDate(0, 0, 3)

	var invoices []models.Invoice
	if err := s.db.
		Where("status = ? AND due_date BETWEEN ? AND ?", models.StatusFunded, now, cutoff).
		Find(&invoices).Error; err != nil {
		log.Printf("Failed to fetch due invoices: %v", err)
		return
	}

	for _, invoice := range invoices {
		s.remindBuyer(invoice)
	}

	log.Println("Payment reminder processing completed")
}

func (s *ReminderService) remindBuyer(invoice models.Invoice) {
	var buyer models.User
	if err := s.db.First(&buyer, "address = ?", invoice.Buyer).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("Invoice %d: failed to load buyer %s: %v", invoice.TokenID, invoice.Buyer, err)
		}
		return
	}
	if buyer.Phone == "" {
		return
	}

	daysLeft := utils.DaysBetween(time.Now(), invoice.DueDate)
	message := fmt.Sprintf(
		"Reminder: invoice %s for %d %s is due in %d day(s). Settle on time to protect your reputation score.",
		invoice.InvoiceNumber, invoice.FaceValue, invoice.Currency, daysLeft)

	// Determine channel (WhatsApp if available, else SMS)
	channel := "sms"
	var to string

	// Use WhatsApp if phone is in E.164 format and starts with '+'
	if strings.HasPrefix(buyer.Phone, "+") {
		to = "whatsapp:" + buyer.Phone
		channel = "whatsapp"
	} else {
		to = buyer.Phone
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetBody(message)

	if channel == "whatsapp" {
		params.SetFrom("whatsapp:" + os.Getenv("TWILIO_WHATSAPP_NUMBER"))
	} else {
		params.SetFrom(os.Getenv("TWILIO_PHONE_NUMBER"))
	}

	resp, err := s.client.Api.CreateMessage(params)
	status := "sent"
	errorMsg := ""

	if err != nil {
		log.Printf("Failed to send reminder to %s: %v", buyer.Phone, err)
		status = "failed"
		errorMsg = err.Error()
	} else if resp.Sid != nil {
		log.Printf("Reminder sent to %s, SID: %s", buyer.Phone, *resp.Sid)
	} else {
		log.Printf("Reminder sent to %s, but no SID returned", buyer.Phone)
	}

	reminderLog := models.PaymentReminderLog{
		TokenID:      invoice.TokenID,
		Buyer:        invoice.Buyer,
		Message:      message,
		Status:       status,
		ErrorMessage: errorMsg,
		Channel:      channel,
		SentAt:       time.Now(),
	}

	if err := s.db.Create(&reminderLog).Error; err != nil {
		log.Printf("Failed to log reminder for invoice %d: %v", invoice.TokenID, err)
	}
}
