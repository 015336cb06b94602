package api

import (
	"net/http"

	"autoservice/internal/domain"
	"autoservice/internal/models"
)

func partPath(r *http.Request) (bookingID, partUsageID int64, err error) {
	if bookingID, err = pathID(r, "id"); err != nil {
		return 0, 0, err
	}
	if partUsageID, err = pathID(r, "partId"); err != nil {
		return 0, 0, err
	}
	return bookingID, partUsageID, nil
}

func (s *HTTPServer) handleListParts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	parts, err := s.svc.Parts.ListParts(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if parts == nil {
		parts = []*models.WorkOrderPart{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"parts": parts})
}

type proposePartRequest struct {
	PartID             int64  `json:"partId"`
	CategoryID         *int64 `json:"categoryId"`
	Quantity           int64  `json:"quantity"`
	IsCustomerSupplied bool   `json:"isCustomerSupplied"`
	Notes              string `json:"notes"`
}

func (s *HTTPServer) handleProposePart(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var body proposePartRequest
	if err := decodeJSON(r, &body); err != nil {
		writeDomainError(w, err)
		return
	}

	part, err := s.svc.Parts.ProposePart(r.Context(), domain.ProposePartRequest{
		BookingID:          id,
		TechnicianID:       actorFrom(r).ID,
		PartID:             body.PartID,
		CategoryID:         body.CategoryID,
		Quantity:           body.Quantity,
		IsCustomerSupplied: body.IsCustomerSupplied,
		Notes:              body.Notes,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, part)
}

func (s *HTTPServer) handleUpdatePart(w http.ResponseWriter, r *http.Request) {
	bookingID, partUsageID, err := partPath(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var body struct {
		Quantity int64  `json:"quantity"`
		Notes    string `json:"notes"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeDomainError(w, err)
		return
	}

	part, err := s.svc.Parts.UpdatePart(r.Context(), bookingID, partUsageID, body.Quantity, body.Notes)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, part)
}

func (s *HTTPServer) handleDeletePart(w http.ResponseWriter, r *http.Request) {
	bookingID, partUsageID, err := partPath(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.svc.Parts.DeletePart(r.Context(), bookingID, partUsageID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type partAction func(r *http.Request, bookingID, partUsageID int64, actor domain.Actor) (*models.WorkOrderPart, error)

func (s *HTTPServer) partAction(w http.ResponseWriter, r *http.Request, apply partAction) {
	bookingID, partUsageID, err := partPath(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	part, err := apply(r, bookingID, partUsageID, actorFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, part)
}

func (s *HTTPServer) handleApproveAndConsume(w http.ResponseWriter, r *http.Request) {
	s.partAction(w, r, func(r *http.Request, bookingID, partUsageID int64, actor domain.Actor) (*models.WorkOrderPart, error) {
		return s.svc.Parts.ApproveAndConsume(r.Context(), bookingID, partUsageID, actor.ID)
	})
}

func (s *HTTPServer) handleStaffReject(w http.ResponseWriter, r *http.Request) {
	s.partAction(w, r, func(r *http.Request, bookingID, partUsageID int64, actor domain.Actor) (*models.WorkOrderPart, error) {
		return s.svc.Parts.StaffReject(r.Context(), bookingID, partUsageID, actor.ID)
	})
}

func (s *HTTPServer) handleCustomerApprove(w http.ResponseWriter, r *http.Request) {
	s.partAction(w, r, func(r *http.Request, bookingID, partUsageID int64, actor domain.Actor) (*models.WorkOrderPart, error) {
		return s.svc.Parts.CustomerApprove(r.Context(), bookingID, partUsageID, actor.ID)
	})
}

func (s *HTTPServer) handleCustomerReject(w http.ResponseWriter, r *http.Request) {
	s.partAction(w, r, func(r *http.Request, bookingID, partUsageID int64, actor domain.Actor) (*models.WorkOrderPart, error) {
		return s.svc.Parts.CustomerReject(r.Context(), bookingID, partUsageID, actor.ID)
	})
}

func (s *HTTPServer) handleReplacePart(w http.ResponseWriter, r *http.Request) {
	var body struct {
		NewPartID int64 `json:"newPartId"`
		Quantity  int64 `json:"quantity"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeDomainError(w, err)
		return
	}
	s.partAction(w, r, func(r *http.Request, bookingID, partUsageID int64, actor domain.Actor) (*models.WorkOrderPart, error) {
		return s.svc.Parts.ReplacePart(r.Context(), bookingID, partUsageID, body.NewPartID, body.Quantity)
	})
}

func (s *HTTPServer) handleConsumeCustomerSupplied(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OrderItemID int64 `json:"orderItemId"`
		Quantity    int64 `json:"quantity"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeDomainError(w, err)
		return
	}
	s.partAction(w, r, func(r *http.Request, bookingID, partUsageID int64, actor domain.Actor) (*models.WorkOrderPart, error) {
		return s.svc.Parts.ConsumeCustomerSupplied(r.Context(), domain.SupplyRequest{
			BookingID:   bookingID,
			PartUsageID: partUsageID,
			OrderItemID: body.OrderItemID,
			Quantity:    body.Quantity,
			StaffID:     actor.ID,
		})
	})
}
