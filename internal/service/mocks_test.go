package service

import (
	"context"
	"sync"
	"time"

	"autoservice/internal/models"

	"github.com/stretchr/testify/mock"
)

type mockBookingRepo struct {
	mock.Mock
}

func (m *mockBookingRepo) IsSlotBooked(ctx context.Context, key models.SlotKey) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *mockBookingRepo) GetBookedSlots(ctx context.Context, centerID int64, date time.Time) ([]*models.TechnicianTimeSlot, error) {
	args := m.Called(ctx, centerID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.TechnicianTimeSlot), args.Error(1)
}

func (m *mockBookingRepo) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// copies keep the service from mutating the fixture between calls
	b := *args.Get(0).(*models.Booking)
	return &b, args.Error(1)
}

func (m *mockBookingRepo) CreateBookingWithSlot(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockBookingRepo) UpdateBookingStatusWithVersion(ctx context.Context, id, version int64, status models.BookingStatus) error {
	return m.Called(ctx, id, version, status).Error(0)
}

func (m *mockBookingRepo) GetBookingsByCenterDate(ctx context.Context, centerID int64, date time.Time) ([]*models.Booking, error) {
	args := m.Called(ctx, centerID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}

func (m *mockBookingRepo) CountPendingChecklist(ctx context.Context, bookingID int64) (int, error) {
	args := m.Called(ctx, bookingID)
	return args.Int(0), args.Error(1)
}

func (m *mockBookingRepo) UpsertChecklistResult(ctx context.Context, r *models.ChecklistResult) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockBookingRepo) GetChecklist(ctx context.Context, bookingID int64) ([]*models.ChecklistResult, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ChecklistResult), args.Error(1)
}

type mockScheduleCatalog struct {
	mock.Mock
}

func (m *mockScheduleCatalog) GetTechnician(ctx context.Context, id int64) (*models.Technician, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Technician), args.Error(1)
}

func (m *mockScheduleCatalog) GetTechniciansByCenter(ctx context.Context, centerID int64) ([]*models.Technician, error) {
	args := m.Called(ctx, centerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Technician), args.Error(1)
}

func (m *mockScheduleCatalog) GetTimeSlots(ctx context.Context) ([]*models.TimeSlot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.TimeSlot), args.Error(1)
}

func (m *mockScheduleCatalog) GetTimeSlot(ctx context.Context, id int64) (*models.TimeSlot, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TimeSlot), args.Error(1)
}

type publishedEvent struct {
	Type    string
	Payload interface{}
	Groups  []string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) PublishJSON(eventType string, payload interface{}, groups ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Type: eventType, Payload: payload, Groups: groups})
	return nil
}

func (p *recordingPublisher) ofType(eventType string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type sentNotification struct {
	Audience    Audience
	RecipientID int64
	BookingID   int64
	Message     string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (n *recordingNotifier) record(a Audience, recipient, bookingID int64, msg string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{a, recipient, bookingID, msg})
	return n.err
}

func (n *recordingNotifier) SendCustomerNotification(ctx context.Context, customerID, bookingID int64, message string) error {
	return n.record(AudienceCustomer, customerID, bookingID, message)
}

func (n *recordingNotifier) SendTechnicianNotification(ctx context.Context, technicianID, bookingID int64, message string) error {
	return n.record(AudienceTechnician, technicianID, bookingID, message)
}

func (n *recordingNotifier) SendStaffNotification(ctx context.Context, centerID, bookingID int64, message string) error {
	return n.record(AudienceStaff, centerID, bookingID, message)
}

func (n *recordingNotifier) audiences() []Audience {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Audience, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.Audience)
	}
	return out
}
