package api

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"beacon/internal/db"
	"beacon/internal/models"
)

const earthRadiusMeters = 6371000

type SafePlaceHandler struct {
	places *db.SafePlaceRepository
}

func NewSafePlaceHandler(places *db.SafePlaceRepository) *SafePlaceHandler {
	return &SafePlaceHandler{places: places}
}

// POST /api/v1/safe-places
type CreateSafePlaceRequest struct {
	Name      string  `json:"name" validate:"required,max=100"`
	Address   string  `json:"address" validate:"omitempty,max=200"`
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
}

func (h *SafePlaceHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == "" {
		unauthorized(w, "User not found in context")
		return
	}

	var req CreateSafePlaceRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	name := sanitizeText(req.Name)
	if name == "" {
		badRequest(w, "name must not be empty")
		return
	}

	place, err := h.places.Create(userID, name, sanitizeText(req.Address), req.Latitude, req.Longitude)
	if err != nil {
		slog.Error("error creating safe place", "error", err, "user_id", userID)
		internalError(w)
		return
	}

	annotateType(place)
	writeJSON(w, http.StatusCreated, place)
}

// GET /api/v1/safe-places
//
// With lat and lng query parameters each place carries its distance from
// that point and the list is sorted nearest first; radius (meters) trims
// anything farther away.
func (h *SafePlaceHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == "" {
		unauthorized(w, "User not found in context")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			badRequest(w, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	places, err := h.places.List(userID, limit)
	if err != nil {
		slog.Error("error listing safe places", "error", err, "user_id", userID)
		internalError(w)
		return
	}

	for _, p := range places {
		annotateType(p)
	}

	latStr := r.URL.Query().Get("lat")
	lngStr := r.URL.Query().Get("lng")
	if latStr != "" || lngStr != "" {
		lat, errLat := strconv.ParseFloat(latStr, 64)
		lng, errLng := strconv.ParseFloat(lngStr, 64)
		if errLat != nil || errLng != nil || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
			badRequest(w, "lat and lng must be valid coordinates")
			return
		}

		radius := math.Inf(1)
		if v := r.URL.Query().Get("radius"); v != "" {
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil || parsed <= 0 {
				badRequest(w, "radius must be a positive number of meters")
				return
			}
			radius = parsed
		}

		nearby := make([]*models.SafePlace, 0, len(places))
		for _, p := range places {
			d := haversineMeters(lat, lng, p.Latitude, p.Longitude)
			if d > radius {
				continue
			}
			p.DistanceMeters = &d
			nearby = append(nearby, p)
		}
		sort.Slice(nearby, func(i, j int) bool {
			return *nearby[i].DistanceMeters < *nearby[j].DistanceMeters
		})
		places = nearby
	}

	writeJSON(w, http.StatusOK, map[string]any{"safePlaces": places})
}

// GET /api/v1/safe-places/{id}
func (h *SafePlaceHandler) Get(w http.ResponseWriter, r *http.Request) {
	place, ok := h.ownedPlace(w, r)
	if !ok {
		return
	}

	annotateType(place)
	writeJSON(w, http.StatusOK, place)
}

// PATCH /api/v1/safe-places/{id}
type UpdateSafePlaceRequest struct {
	Name      *string  `json:"name" validate:"omitempty,max=100"`
	Address   *string  `json:"address" validate:"omitempty,max=200"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"omitempty,longitude"`
}

func (h *SafePlaceHandler) Update(w http.ResponseWriter, r *http.Request) {
	place, ok := h.ownedPlace(w, r)
	if !ok {
		return
	}

	var req UpdateSafePlaceRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	if req.Name != nil {
		name := sanitizeText(*req.Name)
		if name == "" {
			badRequest(w, "name must not be empty")
			return
		}
		place.Name = name
	}
	if req.Address != nil {
		place.Address = sanitizeText(*req.Address)
	}
	if req.Latitude != nil {
		place.Latitude = *req.Latitude
	}
	if req.Longitude != nil {
		place.Longitude = *req.Longitude
	}

	if err := h.places.Update(place); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			notFound(w, "Safe place not found")
			return
		}
		slog.Error("error updating safe place", "error", err, "place_id", place.ID)
		internalError(w)
		return
	}

	annotateType(place)
	writeJSON(w, http.StatusOK, place)
}

// DELETE /api/v1/safe-places/{id}
func (h *SafePlaceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	place, ok := h.ownedPlace(w, r)
	if !ok {
		return
	}

	if err := h.places.Delete(place.ID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			notFound(w, "Safe place not found")
			return
		}
		slog.Error("error deleting safe place", "error", err, "place_id", place.ID)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Safe place deleted"})
}

func (h *SafePlaceHandler) ownedPlace(w http.ResponseWriter, r *http.Request) (*models.SafePlace, bool) {
	userID := GetUserID(r)
	if userID == "" {
		unauthorized(w, "User not found in context")
		return nil, false
	}

	place, err := h.places.FindByID(chi.URLParam(r, "id"))
	if errors.Is(err, db.ErrNotFound) {
		notFound(w, "Safe place not found")
		return nil, false
	}
	if err != nil {
		slog.Error("error finding safe place", "error", err)
		internalError(w)
		return nil, false
	}

	if place.UserID != userID {
		forbidden(w, "Safe place belongs to another user")
		return nil, false
	}

	return place, true
}

// annotateType tags places whose name marks them as a police station, so
// clients can render them distinctly without a separate taxonomy.
func annotateType(p *models.SafePlace) {
	if strings.Contains(strings.ToLower(p.Name), "police") {
		p.Type = "police"
	}
}

// haversineMeters is the great-circle distance between two coordinates.
func haversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
