package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-playground/validator/v10"

	"github.com/couchcryptid/station-insight-service/internal/analysis"
	"github.com/couchcryptid/station-insight-service/internal/domain"
	"github.com/couchcryptid/station-insight-service/internal/resolve"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type resolveRequest struct {
	Query      string                    `json:"query" validate:"required"`
	PriorTurns []domain.ConversationTurn `json:"priorTurns" validate:"dive"`
}

type stationRef struct {
	ID        string  `json:"id" validate:"required"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"min=-180,max=180"`
	Elevation float64 `json:"elevation"`
	Network   string  `json:"network"`
	Timezone  string  `json:"timezone"`
}

type analyzeRequest struct {
	Query    string       `json:"query" validate:"required"`
	Stations []stationRef `json:"stations" validate:"required,min=1,dive"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.resolver.Resolve(r.Context(), resolve.Request{
		Query:      req.Query,
		PriorTurns: req.PriorTurns,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, res)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.maxStations > 0 && len(req.Stations) > s.maxStations {
		s.writeError(w, r, domain.InputError(fmt.Sprintf("at most %d stations may be analyzed", s.maxStations)))
		return
	}

	stations := make([]domain.Station, 0, len(req.Stations))
	for _, st := range req.Stations {
		stations = append(stations, domain.Station{
			ID:        st.ID,
			Name:      st.Name,
			Latitude:  st.Latitude,
			Longitude: st.Longitude,
			Elevation: st.Elevation,
			Network:   st.Network,
			Timezone:  st.Timezone,
		})
	}

	// The stream outlives the server's write timeout.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.logger.Warn("failed to clear write deadline", "error", err)
	}

	sink := newSSESink(w, r, s.logger)
	err := s.analyzer.Analyze(r.Context(), analysis.Request{Query: req.Query, Stations: stations}, sink)
	if err == nil {
		return
	}
	if sink.Started() {
		s.logger.Error("analysis failed mid-stream", "error", err, "request_id", RequestIDFrom(r.Context()))
		return
	}
	s.writeError(w, r, err)
}

func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	stations, err := s.catalog.ListStations(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{
		"count":    len(stations),
		"stations": stations,
	})
}

func (s *Server) handleTimezones(w http.ResponseWriter, _ *http.Request) {
	tz := s.catalog.Timezones()
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{
		"count":     len(tz),
		"timezones": tz,
	})
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// Failures are returned as input errors.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return domain.InputError("invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		return domain.InputError(validationReason(err))
	}
	return nil
}

// validationReason describes the first failed field using its JSON path.
func validationReason(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return field + " must not be empty"
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return field + " is invalid"
	}
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindInput:
		return http.StatusBadRequest
	case domain.KindResolution, domain.KindNoData:
		return http.StatusNotFound
	case domain.KindDataQuality:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	if kind == domain.KindUnexpected {
		s.logger.Error("request failed",
			"path", r.URL.Path,
			"error", err,
			"request_id", RequestIDFrom(r.Context()),
		)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: string(kind), Reason: "internal error"})
		return
	}
	sharedobs.WriteJSON(w, statusFor(kind), errorResponse{Error: string(kind), Reason: err.Error()})
}
