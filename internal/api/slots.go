package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"autoservice/internal/domain"
	"autoservice/internal/models"

	"github.com/google/uuid"
)

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
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
	serviceIDs, err := splitIDs(r.URL.Query().Get("serviceIds"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	result, err := s.svc.Availability.GetAvailability(r.Context(), domain.AvailabilityQuery{
		CenterID:   centerID,
		Date:       date,
		ServiceIDs: serviceIDs,
		HolderID:   strings.TrimSpace(r.URL.Query().Get("holderId")),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func slotKeyFromQuery(r *http.Request) (models.SlotKey, error) {
	var (
		key models.SlotKey
		err error
	)
	if key.CenterID, err = queryID(r, "centerId"); err != nil {
		return key, err
	}
	if key.TechnicianID, err = queryID(r, "technicianId"); err != nil {
		return key, err
	}
	if key.SlotID, err = queryID(r, "slotId"); err != nil {
		return key, err
	}
	if key.Date, err = queryDate(r, "date"); err != nil {
		return key, err
	}
	return key, nil
}

// holderFor picks the hold owner: an explicit holderId, the customer's id,
// or a fresh guest token for anonymous callers.
func holderFor(r *http.Request) string {
	if holder := strings.TrimSpace(r.URL.Query().Get("holderId")); holder != "" {
		return holder
	}
	if actor := actorFrom(r); actor.Role == domain.RoleCustomer && actor.ID > 0 {
		return strconv.FormatInt(actor.ID, 10)
	}
	return models.GuestHolderPrefix + uuid.NewString()
}

type holdResponse struct {
	HolderID     string `json:"holderId"`
	CenterID     int64  `json:"centerId"`
	TechnicianID int64  `json:"technicianId"`
	SlotID       int64  `json:"slotId"`
	Date         string `json:"date"`
	ExpiresAt    string `json:"expiresAt"`
}

func (s *HTTPServer) handleReserveSlot(w http.ResponseWriter, r *http.Request) {
	key, err := slotKeyFromQuery(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	hold, err := s.svc.Holds.Reserve(r.Context(), key, holderFor(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, holdResponse{
		HolderID:     hold.HolderID,
		CenterID:     hold.Key.CenterID,
		TechnicianID: hold.Key.TechnicianID,
		SlotID:       hold.Key.SlotID,
		Date:         hold.Key.DateString(),
		ExpiresAt:    hold.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (s *HTTPServer) handleReleaseSlot(w http.ResponseWriter, r *http.Request) {
	key, err := slotKeyFromQuery(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	holder := strings.TrimSpace(r.URL.Query().Get("holderId"))
	if holder == "" {
		if actor := actorFrom(r); actor.ID > 0 {
			holder = strconv.FormatInt(actor.ID, 10)
		}
	}

	released, err := s.svc.Holds.Release(r.Context(), key, holder)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"released": released})
}
