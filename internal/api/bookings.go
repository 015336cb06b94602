package api

import (
	"context"
	"net/http"

	"autoservice/internal/domain"
	"autoservice/internal/models"
)

type createBookingRequest struct {
	CustomerID      int64  `json:"customerId"`
	CenterID        int64  `json:"centerId"`
	ServiceID       int64  `json:"serviceId"`
	TechnicianID    int64  `json:"technicianId"`
	SlotID          int64  `json:"slotId"`
	Date            string `json:"date"`
	HolderID        string `json:"holderId"`
	AppliedCreditID *int64 `json:"appliedCreditId"`
	SpecialRequests string `json:"specialRequests"`
	Notes           string `json:"notes"`
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var body createBookingRequest
	if err := decodeJSON(r, &body); err != nil {
		writeDomainError(w, err)
		return
	}
	date, err := parseDate(body.Date)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// customers always book for themselves; staff may book on a customer's behalf
	customerID := body.CustomerID
	if actor := actorFrom(r); actor.Role == domain.RoleCustomer && actor.ID > 0 {
		customerID = actor.ID
	}

	booking, err := s.svc.Bookings.CreateBooking(r.Context(), domain.CreateBookingRequest{
		CustomerID:      customerID,
		CenterID:        body.CenterID,
		ServiceID:       body.ServiceID,
		TechnicianID:    body.TechnicianID,
		SlotID:          body.SlotID,
		WorkDate:        date,
		HolderID:        body.HolderID,
		AppliedCreditID: body.AppliedCreditID,
		SpecialRequests: body.SpecialRequests,
		Notes:           body.Notes,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	booking, err := s.svc.Bookings.GetBooking(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	centerID, err := queryID(r, "centerId")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	date, err := queryDate(r, "date")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	bookings, err := s.svc.Bookings.ListBookings(r.Context(), centerID, date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeDomainError(w, err)
		return
	}

	booking, err := s.svc.Bookings.UpdateStatus(r.Context(), id, models.BookingStatus(body.Status), actorFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.svc.Bookings.CheckIn)
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.svc.Bookings.Cancel)
}

func (s *HTTPServer) transition(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id int64, actor domain.Actor) (*models.Booking, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	booking, err := apply(r.Context(), id, actorFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleGetChecklist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	results, err := s.svc.Bookings.GetChecklist(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if results == nil {
		results = []*models.ChecklistResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"checklist": results})
}

func (s *HTTPServer) handleRecordChecklist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	categoryID, err := pathID(r, "categoryId")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var body struct {
		Result string `json:"result"`
		Notes  string `json:"notes"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeDomainError(w, err)
		return
	}

	result, err := s.svc.Bookings.RecordChecklistResult(r.Context(), domain.ChecklistRequest{
		BookingID:  id,
		CategoryID: categoryID,
		Result:     body.Result,
		Notes:      body.Notes,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handlePaymentConfirmed(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BookingID int64  `json:"bookingId"`
		PaymentID string `json:"paymentId"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeDomainError(w, err)
		return
	}
	if body.BookingID <= 0 {
		writeError(w, http.StatusBadRequest, "bookingId is required")
		return
	}

	booking, err := s.svc.Bookings.OnPaymentConfirmed(r.Context(), body.BookingID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.logger.Info().Int64("booking_id", booking.ID).Str("payment_id", body.PaymentID).Msg("payment confirmed via callback")
	writeJSON(w, http.StatusOK, booking)
}
