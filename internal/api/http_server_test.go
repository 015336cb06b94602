package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"autoservice/internal/clock"
	"autoservice/internal/config"
	"autoservice/internal/database"
	"autoservice/internal/events"
	"autoservice/internal/logging"
	"autoservice/internal/models"
	"autoservice/internal/repository"
	"autoservice/internal/service"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 5, 31, 10, 0, 0, 0, time.UTC)

const testDate = "2025-06-01"

type testEnv struct {
	ts  *httptest.Server
	hub *events.Hub
	db  *database.DB
}

func newTestEnv(t *testing.T, cfg config.APIConfig) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := logging.Nop()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.SyncCatalog(ctx, &database.Catalog{
		Technicians: []*models.Technician{
			{ID: 7, CenterID: 1, Name: "Ivan", ServiceIDs: []int64{100}, IsActive: true},
		},
		TimeSlots: []*models.TimeSlot{
			{ID: 3, StartTime: "11:00", EndTime: "12:00"},
			{ID: 4, StartTime: "12:00", EndTime: "13:00"},
		},
		Parts:     []*models.Part{{ID: 500, Name: "Oil filter", CategoryID: 7}},
		Inventory: []*models.InventoryPart{{CenterID: 1, PartID: 500, CurrentStock: 2}},
	}))

	clk := clock.NewManual(testNow)
	hub := events.NewHub()
	outbox := events.NewOutbox(64, events.NewEventBus(), hub, logger)
	runCtx, cancel := context.WithCancel(ctx)
	go outbox.Run(runCtx)
	t.Cleanup(cancel)

	holds := repository.NewMemoryHoldStore(clk)
	svc := Services{
		Holds:        service.NewHoldService(holds, db, db, outbox, service.DatePolicy{Clock: clk, MaxAdvanceDays: 30}, 5*time.Minute, logger),
		Availability: service.NewAvailabilityService(db, holds, db, clk, logger),
		Bookings:     service.NewBookingService(db, holds, db, outbox, nil, clk, service.BookingOptions{CheckInLeadDays: 1}, logger),
		Parts:        service.NewPartService(db, db, db, outbox, nil, clk, logger),
	}

	server := NewHTTPServer(cfg, svc, hub, logger)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, hub: hub, db: db}
}

type actorHeaders struct {
	id   string
	role string
}

var (
	asCustomer   = actorHeaders{"42", "customer"}
	asStranger   = actorHeaders{"43", "customer"}
	asStaff      = actorHeaders{"900", "staff"}
	asTechnician = actorHeaders{"7", "technician"}
)

func (e *testEnv) do(t *testing.T, method, path string, actor actorHeaders, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	if actor.id != "" {
		req.Header.Set(headerActorID, actor.id)
	}
	if actor.role != "" {
		req.Header.Set(headerActorRole, actor.role)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func reservePath(slotID int64) string {
	return "/api/v1/reserve-slot?centerId=1&technicianId=7&date=" + testDate + "&slotId=" + strconv.FormatInt(slotID, 10)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	resp := env.do(t, http.MethodGet, "/healthz", actorHeaders{}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(headerRequestID))
}

func TestReserveReleaseAndAvailability(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	resp := env.do(t, http.MethodPost, reservePath(3), asCustomer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	hold := decode[holdResponse](t, resp)
	assert.Equal(t, "42", hold.HolderID)
	assert.Equal(t, "2025-05-31T10:05:00Z", hold.ExpiresAt)

	resp = env.do(t, http.MethodPost, reservePath(3), asStranger, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, http.MethodPost, reservePath(4), actorHeaders{}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	guest := decode[holdResponse](t, resp)
	assert.True(t, strings.HasPrefix(guest.HolderID, models.GuestHolderPrefix))

	resp = env.do(t, http.MethodGet, "/api/v1/availability?centerId=1&date="+testDate+"&holderId=42", asCustomer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	avail := decode[models.Availability](t, resp)
	require.Len(t, avail.Technicians, 1)
	slots := avail.Technicians[0].Slots
	require.Len(t, slots, 2)
	assert.Equal(t, models.SlotHeld, slots[0].State)
	assert.True(t, slots[0].HeldByRequester)
	assert.Equal(t, models.SlotHeld, slots[1].State)
	assert.False(t, slots[1].HeldByRequester)

	resp = env.do(t, http.MethodPost, strings.Replace(reservePath(3), "reserve-slot", "release-slot", 1), asStranger, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]bool{"released": false}, decode[map[string]bool](t, resp))

	resp = env.do(t, http.MethodPost, strings.Replace(reservePath(3), "reserve-slot", "release-slot", 1), asCustomer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]bool{"released": true}, decode[map[string]bool](t, resp))
}

func TestBookingLifecycle(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	resp := env.do(t, http.MethodPost, "/api/v1/bookings", asCustomer, map[string]any{
		"centerId": 1, "serviceId": 100, "technicianId": 7, "slotId": 3, "date": testDate,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	booking := decode[models.Booking](t, resp)
	assert.Equal(t, int64(42), booking.CustomerID)
	assert.Equal(t, models.StatusPending, booking.Status)
	base := "/api/v1/bookings/" + strconv.FormatInt(booking.ID, 10)

	resp = env.do(t, http.MethodPost, "/api/v1/bookings", asStranger, map[string]any{
		"centerId": 1, "serviceId": 100, "technicianId": 7, "slotId": 3, "date": testDate,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "slot already booked")

	resp = env.do(t, http.MethodPut, base+"/status", asCustomer, map[string]string{"status": "CONFIRMED"})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "only staff can confirm", decode[errorResponse](t, resp).Reason)

	resp = env.do(t, http.MethodPut, base+"/status", asStaff, map[string]string{"status": "CONFIRMED"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = env.do(t, http.MethodPost, base+"/check-in", asStaff, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = env.do(t, http.MethodPut, base+"/status", asStaff, map[string]string{"status": "IN_PROGRESS"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPost, base+"/parts", asTechnician, map[string]any{"partId": 500, "quantity": 3})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	part := decode[models.WorkOrderPart](t, resp)
	partBase := base + "/parts/" + strconv.FormatInt(part.ID, 10)

	resp = env.do(t, http.MethodPut, partBase+"/customer-approve", asStranger, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = env.do(t, http.MethodPut, partBase+"/customer-approve", asCustomer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPut, partBase+"/approve-and-consume", asStaff, nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	stockErr := decode[errorResponse](t, resp)
	assert.Equal(t, "INSUFFICIENT_STOCK", stockErr.Code)
	require.NotNil(t, stockErr.Available)
	assert.Equal(t, int64(2), *stockErr.Available)

	resp = env.do(t, http.MethodPut, partBase, asTechnician, map[string]any{"quantity": 2, "notes": "two will do"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = env.do(t, http.MethodPut, partBase+"/approve-and-consume", asStaff, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.PartConsumed, decode[models.WorkOrderPart](t, resp).Status)

	resp = env.do(t, http.MethodDelete, partBase, asTechnician, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, http.MethodPut, base+"/checklist/7", asTechnician, map[string]string{"result": "PENDING"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = env.do(t, http.MethodPut, base+"/status", asStaff, map[string]string{"status": "COMPLETED"})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "checklist not complete", decode[errorResponse](t, resp).Reason)

	resp = env.do(t, http.MethodPut, base+"/checklist/7", asTechnician, map[string]string{"result": "PASS"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = env.do(t, http.MethodPut, base+"/status", asStaff, map[string]string{"status": "COMPLETED"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPost, base+"/cancel", asCustomer, nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "cannot cancel completed/paid booking", decode[errorResponse](t, resp).Reason)

	resp = env.do(t, http.MethodPut, base+"/status", asStaff, map[string]string{"status": "PAID"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	for i := 0; i < 2; i++ {
		resp = env.do(t, http.MethodPost, "/api/v1/payments/confirmed", actorHeaders{"0", "system"}, map[string]any{"bookingId": booking.ID})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, models.StatusPaid, decode[models.Booking](t, resp).Status)
	}

	resp = env.do(t, http.MethodGet, base+"/checklist", asStaff, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = env.do(t, http.MethodGet, "/api/v1/bookings?centerId=1&date="+testDate, asStaff, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[struct {
		Bookings []models.Booking `json:"bookings"`
	}](t, resp)
	require.Len(t, list.Bookings, 1)
	assert.Equal(t, models.StatusPaid, list.Bookings[0].Status)
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	tests := []struct {
		name   string
		method string
		path   string
		actor  actorHeaders
		body   any
		want   int
	}{
		{"unknown booking", http.MethodGet, "/api/v1/bookings/999", asStaff, nil, http.StatusNotFound},
		{"malformed id", http.MethodGet, "/api/v1/bookings/abc", asStaff, nil, http.StatusBadRequest},
		{"unknown role", http.MethodGet, "/api/v1/bookings/1", actorHeaders{"1", "admin"}, nil, http.StatusBadRequest},
		{"missing center", http.MethodGet, "/api/v1/availability?date=" + testDate, asCustomer, nil, http.StatusBadRequest},
		{"bad date", http.MethodGet, "/api/v1/availability?centerId=1&date=01.06.2025", asCustomer, nil, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/v1/bookings", asCustomer, map[string]any{"color": "red"}, http.StatusBadRequest},
		{"past date hold", http.MethodPost, "/api/v1/reserve-slot?centerId=1&technicianId=7&slotId=3&date=2025-05-01", asCustomer, nil, http.StatusBadRequest},
		{"payment without booking", http.MethodPost, "/api/v1/payments/confirmed", asStaff, map[string]any{}, http.StatusBadRequest},
		{"wrong method", http.MethodDelete, "/api/v1/bookings", asStaff, nil, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, tt.method, tt.path, tt.actor, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{RateLimit: config.APIRateLimitConfig{RPS: 0.001, Burst: 1}})

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", asCustomer, nil).StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, env.do(t, http.MethodGet, "/healthz", asCustomer, nil).StatusCode)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", asStaff, nil).StatusCode, "limits are per client")
}

func TestWebsocketFanout(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	group := events.CenterDateGroup(1, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/api/v1/ws?group=" + group
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.hub.Subscribers(group) == 1 }, time.Second, 5*time.Millisecond)

	resp := env.do(t, http.MethodPost, reservePath(3), asCustomer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event struct {
		Type    string                 `json:"type"`
		Payload events.SlotHeldPayload `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, events.EventSlotHeld, event.Type)
	assert.Equal(t, int64(7), event.Payload.TechnicianID)
	assert.Equal(t, int64(3), event.Payload.SlotID)

	conn.Close()
	require.Eventually(t, func() bool { return env.hub.Subscribers(group) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebsocketRequiresGroup(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	resp := env.do(t, http.MethodGet, "/api/v1/ws", asCustomer, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
