package service

import (
	"context"
	"testing"

	"autoservice/internal/logging"
	"autoservice/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestStatusMessage(t *testing.T) {
	msg, ok := StatusMessage(AudienceCustomer, string(models.StatusConfirmed), 11)
	assert.True(t, ok)
	assert.Contains(t, msg, "#11")

	_, ok = StatusMessage(AudienceStaff, string(models.StatusConfirmed), 11)
	assert.False(t, ok)

	msg, ok = StatusMessage(AudienceCustomer, string(models.PartPendingApproval), 5)
	assert.True(t, ok)
	assert.Contains(t, msg, "approval")
}

func TestNotifierSkipsUnassignedTechnician(t *testing.T) {
	sender := &recordingNotifier{}
	n := notifier{sender: sender, logger: logging.Nop()}

	b := bookingIn(models.StatusCancelled)
	b.TechnicianID = 0
	n.bookingStatus(context.Background(), b)
	assert.Empty(t, sender.sent)

	b.TechnicianID = 7
	n.bookingStatus(context.Background(), b)
	assert.Equal(t, []sentNotification{{
		Audience:    AudienceTechnician,
		RecipientID: 7,
		BookingID:   11,
		Message:     "Booking #11 has been cancelled.",
	}}, sender.sent)
}

func TestNotifierWithoutSender(t *testing.T) {
	n := notifier{logger: logging.Nop()}
	assert.NotPanics(t, func() {
		n.bookingStatus(context.Background(), bookingIn(models.StatusConfirmed))
	})
}
