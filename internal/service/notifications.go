package service

import (
	"context"
	"fmt"

	"autoservice/internal/domain"
	"autoservice/internal/models"

	"github.com/rs/zerolog"
)

type Audience string

const (
	AudienceCustomer   Audience = "customer"
	AudienceTechnician Audience = "technician"
	AudienceStaff      Audience = "staff"
)

type messageKey struct {
	audience Audience
	status   string
}

// Тексты уведомлений по (получатель, статус). %d - номер записи.
var statusMessages = map[messageKey]string{
	{AudienceCustomer, string(models.StatusPending)}:     "Your booking #%d has been received and is awaiting confirmation.",
	{AudienceTechnician, string(models.StatusPending)}:   "Booking #%d has been assigned to you.",
	{AudienceCustomer, string(models.StatusConfirmed)}:   "Your booking #%d is confirmed. See you at the service center!",
	{AudienceCustomer, string(models.StatusCheckedIn)}:   "You are checked in for booking #%d.",
	{AudienceTechnician, string(models.StatusCheckedIn)}: "The customer of booking #%d has checked in.",
	{AudienceCustomer, string(models.StatusCompleted)}:   "Work on booking #%d is complete. Please proceed to payment.",
	{AudienceCustomer, string(models.StatusPaid)}:        "Payment for booking #%d has been received. Thank you!",
	{AudienceTechnician, string(models.StatusPaid)}:      "Booking #%d has been paid.",
	{AudienceTechnician, string(models.StatusCancelled)}: "Booking #%d has been cancelled.",

	{AudienceCustomer, string(models.PartPendingApproval)}: "A part was proposed for booking #%d and needs your approval.",
	{AudienceStaff, string(models.PartDraft)}:              "The customer approved a proposed part on booking #%d.",
	{AudienceStaff, string(models.PartRejected)}:           "The customer rejected a proposed part on booking #%d.",
}

// StatusMessage returns the notification text for audience about a booking or
// part status, or false when that audience is not notified.
func StatusMessage(audience Audience, status string, bookingID int64) (string, bool) {
	tmpl, ok := statusMessages[messageKey{audience, status}]
	if !ok {
		return "", false
	}
	return fmt.Sprintf(tmpl, bookingID), true
}

// notifier fans a status change out to the parties of a booking. Delivery
// errors are logged and never returned.
type notifier struct {
	sender domain.Notifier
	logger *zerolog.Logger
}

func (n notifier) bookingStatus(ctx context.Context, b *models.Booking) {
	n.send(ctx, b, string(b.Status), AudienceCustomer, AudienceTechnician, AudienceStaff)
}

func (n notifier) partStatus(ctx context.Context, b *models.Booking, status models.PartStatus) {
	n.send(ctx, b, string(status), AudienceCustomer, AudienceStaff)
}

func (n notifier) send(ctx context.Context, b *models.Booking, status string, audiences ...Audience) {
	if n.sender == nil {
		return
	}
	for _, audience := range audiences {
		msg, ok := StatusMessage(audience, status, b.ID)
		if !ok {
			continue
		}

		var err error
		switch audience {
		case AudienceCustomer:
			err = n.sender.SendCustomerNotification(ctx, b.CustomerID, b.ID, msg)
		case AudienceTechnician:
			if b.TechnicianID == 0 {
				continue
			}
			err = n.sender.SendTechnicianNotification(ctx, b.TechnicianID, b.ID, msg)
		case AudienceStaff:
			err = n.sender.SendStaffNotification(ctx, b.CenterID, b.ID, msg)
		}
		if err != nil {
			n.logger.Error().Err(err).
				Int64("booking_id", b.ID).
				Str("audience", string(audience)).
				Str("status", status).
				Msg("notification failed")
		}
	}
}
