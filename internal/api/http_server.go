package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"parish/internal/config"
	"parish/internal/export"
	"parish/internal/models"
	"parish/internal/service"

	"github.com/rs/zerolog"
)

const (
	defaultSessionsRange = 30 * 24 * time.Hour
	maxBodyBytes         = 1 << 20
)

// Services are the application services exposed over the API.
type Services struct {
	Bookings   *service.BookingService
	Resources  *service.ResourceService
	Programmes *service.ProgrammeService
	Members    *service.MemberService
	// Health reports storage readiness for /healthz. Optional.
	Health func(ctx context.Context) error
}

// HTTPServer exposes the JSON API.
type HTTPServer struct {
	cfg    config.APIConfig
	svc    Services
	loc    *time.Location
	now    func() time.Time
	server *http.Server
	logger zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc Services, loc *time.Location, logger *zerolog.Logger) *HTTPServer {
	if loc == nil {
		loc = time.Local
	}
	srv := &HTTPServer{cfg: cfg, svc: svc, loc: loc, now: time.Now}
	if logger != nil {
		srv.logger = logger.With().Str("component", "http").Logger()
	} else {
		srv.logger = zerolog.Nop()
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

// Handler returns the full middleware stack. Used directly by tests.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("GET /api/v1/resources", s.handleListResources)
	mux.HandleFunc("POST /api/v1/resources", s.handleCreateResource)
	mux.HandleFunc("GET /api/v1/resources/{id}", s.handleGetResource)
	mux.HandleFunc("PUT /api/v1/resources/{id}/status", s.handleResourceStatus)
	mux.HandleFunc("GET /api/v1/resources/{id}/availability", s.handleAvailability)
	mux.HandleFunc("GET /api/v1/resources/{id}/slots", s.handleSlots)

	mux.HandleFunc("POST /api/v1/bookings", s.handleCreateBooking)
	mux.HandleFunc("GET /api/v1/bookings", s.handleListBookings)
	mux.HandleFunc("GET /api/v1/bookings/{id}", s.handleGetBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/{action}", s.handleBookingTransition)

	mux.HandleFunc("GET /api/v1/programmes", s.handleListProgrammes)
	mux.HandleFunc("POST /api/v1/programmes", s.handleCreateProgramme)
	mux.HandleFunc("GET /api/v1/programmes/{id}", s.handleGetProgramme)
	mux.HandleFunc("PUT /api/v1/programmes/{id}", s.handleUpdateProgramme)
	mux.HandleFunc("DELETE /api/v1/programmes/{id}", s.handleDeleteProgramme)
	mux.HandleFunc("GET /api/v1/programmes/{id}/sessions", s.handleSessions)
	mux.HandleFunc("POST /api/v1/programmes/{id}/attendees", s.handleAddAttendee)
	mux.HandleFunc("POST /api/v1/programmes/{id}/attendance", s.handleRecordAttendance)

	mux.HandleFunc("GET /api/v1/statistics", s.handleStatistics)
	mux.HandleFunc("GET /api/v1/exports/statistics.xlsx", s.handleExportStatistics)
	mux.HandleFunc("GET /api/v1/exports/bookings.xlsx", s.handleExportBookings)
	mux.HandleFunc("GET /api/v1/calendar.ics", s.handleCalendar)

	mux.HandleFunc("GET /api/v1/members", s.handleListMembers)
	mux.HandleFunc("POST /api/v1/members", s.handleCreateMember)
	mux.HandleFunc("GET /api/v1/members/{id}", s.handleGetMember)

	auth := newAuthenticator(s.cfg)
	return loggingMiddleware(s.logger, auth.Wrap(recordPattern(mux)))
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.svc.Health != nil {
		if err := s.svc.Health(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- resources ---

func (s *HTTPServer) handleListResources(w http.ResponseWriter, r *http.Request) {
	resources, err := s.svc.Resources.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resources": resources})
}

func (s *HTTPServer) handleCreateResource(w http.ResponseWriter, r *http.Request) {
	var res models.Resource
	if !decodeBody(w, r, &res) {
		return
	}
	if err := s.svc.Resources.Create(r.Context(), &res); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *HTTPServer) handleGetResource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := s.svc.Resources.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleResourceStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	res, err := s.svc.Resources.SetStatus(r.Context(), id, body.Status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	start, err := s.parseTime(r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start: "+err.Error())
		return
	}
	end, err := s.parseTime(r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end: "+err.Error())
		return
	}

	free, conflicts, err := s.svc.Bookings.CheckAvailability(r.Context(), id, start, end)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if conflicts == nil {
		conflicts = []models.Booking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"resource_id": id,
		"start":       start,
		"end":         end,
		"available":   free,
		"conflicts":   conflicts,
	})
}

func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	day, err := time.ParseInLocation(models.DateLayout, strings.TrimSpace(q.Get("date")), s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}
	duration := time.Hour
	if raw := strings.TrimSpace(q.Get("duration")); raw != "" {
		duration, err = parseDuration(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid duration")
			return
		}
	}

	slots, err := s.svc.Bookings.FreeSlots(r.Context(), id, day, duration)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]map[string]time.Time, 0, len(slots))
	for _, st := range slots {
		out = append(out, map[string]time.Time{"start": st, "end": st.Add(duration)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"resource_id": id, "date": q.Get("date"), "slots": out})
}

// --- bookings ---

type bookingRequest struct {
	ResourceID int64  `json:"resource_id"`
	MemberID   int64  `json:"member_id"`
	MemberName string `json:"member_name"`
	Purpose    string `json:"purpose"`
	Start      string `json:"start"`
	End        string `json:"end"`
	Notes      string `json:"notes"`
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var body bookingRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.ResourceID <= 0 {
		writeError(w, http.StatusBadRequest, "resource_id is required")
		return
	}
	start, err := s.parseTime(body.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start: "+err.Error())
		return
	}
	end, err := s.parseTime(body.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end: "+err.Error())
		return
	}

	booking := &models.Booking{
		ResourceID: body.ResourceID,
		MemberID:   body.MemberID,
		MemberName: strings.TrimSpace(body.MemberName),
		Purpose:    strings.TrimSpace(body.Purpose),
		Start:      start,
		End:        end,
		Notes:      body.Notes,
	}
	if err := s.svc.Bookings.CreateBooking(r.Context(), booking); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	from, to, ok := s.rangeQuery(w, r, defaultSessionsRange)
	if !ok {
		return
	}
	bookings, err := s.svc.Bookings.ListBookings(r.Context(), from, to)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	booking, err := s.svc.Bookings.GetBooking(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleBookingTransition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var body struct {
		Version int64  `json:"version"`
		Actor   string `json:"actor"`
	}
	// тело необязательно
	if r.ContentLength != 0 && !decodeBody(w, r, &body) {
		return
	}
	actor := strings.TrimSpace(body.Actor)
	if actor == "" {
		actor = ClientName(r.Context())
	}
	if actor == "" {
		actor = "api"
	}

	var (
		booking *models.Booking
		err     error
	)
	switch r.PathValue("action") {
	case "approve":
		booking, err = s.svc.Bookings.ApproveBooking(r.Context(), id, body.Version, actor)
	case "decline":
		booking, err = s.svc.Bookings.DeclineBooking(r.Context(), id, body.Version, actor)
	case "complete":
		booking, err = s.svc.Bookings.CompleteBooking(r.Context(), id, body.Version, actor)
	default:
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// --- programmes ---

func (s *HTTPServer) handleListProgrammes(w http.ResponseWriter, r *http.Request) {
	programmes, err := s.svc.Programmes.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		want, err := models.ParseProgrammeStatus(status)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filtered := programmes[:0]
		for _, p := range programmes {
			if p.Status == want {
				filtered = append(filtered, p)
			}
		}
		programmes = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"programmes": programmes})
}

func (s *HTTPServer) handleCreateProgramme(w http.ResponseWriter, r *http.Request) {
	var p models.Programme
	if !decodeBody(w, r, &p) {
		return
	}
	p.ID = 0
	if err := s.svc.Programmes.Create(r.Context(), &p); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *HTTPServer) handleGetProgramme(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := s.svc.Programmes.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *HTTPServer) handleUpdateProgramme(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var p models.Programme
	if !decodeBody(w, r, &p) {
		return
	}
	p.ID = id
	if err := s.svc.Programmes.Update(r.Context(), &p); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *HTTPServer) handleDeleteProgramme(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.svc.Programmes.Delete(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	from, to, ok := s.rangeQuery(w, r, defaultSessionsRange)
	if !ok {
		return
	}
	sessions, err := s.svc.Programmes.Sessions(r.Context(), id, from, to)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if strings.EqualFold(r.URL.Query().Get("format"), "ics") {
		writeCalendar(w, export.SessionsCalendar(sessions, s.now()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"programme_id": id, "sessions": sessions})
}

func (s *HTTPServer) handleAddAttendee(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		MemberID int64 `json:"member_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.svc.Programmes.AddAttendee(r.Context(), id, body.MemberID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"programme_id": id, "member_id": body.MemberID})
}

func (s *HTTPServer) handleRecordAttendance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		MemberID int64  `json:"member_id"`
		Date     string `json:"date"`
		Present  bool   `json:"present"`
		Notes    string `json:"notes"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	date, err := time.ParseInLocation(models.DateLayout, strings.TrimSpace(body.Date), s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	rec := &models.AttendanceRecord{
		ProgrammeID: id,
		MemberID:    body.MemberID,
		Date:        date,
		Present:     body.Present,
		Notes:       body.Notes,
	}
	if err := s.svc.Programmes.RecordAttendance(r.Context(), rec); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// --- statistics and exports ---

func (s *HTTPServer) handleStatistics(w http.ResponseWriter, r *http.Request) {
	var (
		st  *models.Statistics
		err error
	)
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		st, err = s.svc.Programmes.Refresh(r.Context())
	} else {
		st, err = s.svc.Programmes.Statistics(r.Context())
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *HTTPServer) handleExportStatistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := s.svc.Programmes.Statistics(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	programmes, err := s.svc.Programmes.List(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	summaries, err := s.svc.Programmes.AttendanceSummaries(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	f, err := export.StatisticsWorkbook(st, programmes, summaries)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeWorkbook(w, r, "statistics_"+s.now().In(s.loc).Format("20060102")+".xlsx", func() ([]byte, error) {
		return export.WorkbookBytes(f)
	})
}

func (s *HTTPServer) handleExportBookings(w http.ResponseWriter, r *http.Request) {
	from, to, ok := s.rangeQuery(w, r, defaultSessionsRange)
	if !ok {
		return
	}
	bookings, err := s.svc.Bookings.ListBookings(r.Context(), from, to)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	f, err := export.BookingsWorkbook(bookings, from, to, s.loc)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	name := fmt.Sprintf("bookings_%s_%s.xlsx", from.Format("20060102"), to.Format("20060102"))
	s.writeWorkbook(w, r, name, func() ([]byte, error) {
		return export.WorkbookBytes(f)
	})
}

func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	programmes, err := s.svc.Programmes.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeCalendar(w, export.ProgrammeCalendar(programmes, s.now()))
}

func (s *HTTPServer) writeWorkbook(w http.ResponseWriter, r *http.Request, name string, render func() ([]byte, error)) {
	data, err := render()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeCalendar(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// --- members ---

func (s *HTTPServer) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.svc.Members.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

func (s *HTTPServer) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	var m models.Member
	if !decodeBody(w, r, &m) {
		return
	}
	m.ID = 0
	if err := s.svc.Members.Create(r.Context(), &m); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *HTTPServer) handleGetMember(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	m, err := s.svc.Members.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// --- helpers ---

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	if code == http.StatusInternalServerError {
		s.logger.Error().Err(err).
			Str("request_id", RequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, code, "internal error")
		return
	}
	writeError(w, code, err.Error())
}

// parseTime accepts RFC 3339 or "YYYY-MM-DD HH:MM" in the server location.
func (s *HTTPServer) parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("value is required")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	for _, layout := range []string{models.DateTimeLayout, "2006-01-02T15:04", models.DateLayout} {
		if t, err := time.ParseInLocation(layout, raw, s.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time format %q", raw)
}

// rangeQuery reads ?from&to. A missing from defaults to the start of today,
// a missing to defaults to from+def.
func (s *HTTPServer) rangeQuery(w http.ResponseWriter, r *http.Request, def time.Duration) (time.Time, time.Time, bool) {
	q := r.URL.Query()

	now := s.now().In(s.loc)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	if raw := q.Get("from"); raw != "" {
		t, err := s.parseTime(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from: "+err.Error())
			return time.Time{}, time.Time{}, false
		}
		from = t
	}
	to := from.Add(def)
	if raw := q.Get("to"); raw != "" {
		t, err := s.parseTime(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to: "+err.Error())
			return time.Time{}, time.Time{}, false
		}
		to = t
	}
	if !from.Before(to) {
		writeError(w, http.StatusBadRequest, "from must be before to")
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// parseDuration accepts Go durations ("90m") or plain minutes ("90").
func parseDuration(raw string) (time.Duration, error) {
	if minutes, err := strconv.Atoi(raw); err == nil {
		if minutes <= 0 {
			return 0, errors.New("duration must be positive")
		}
		return time.Duration(minutes) * time.Minute, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("duration must be positive")
	}
	return d, nil
}
