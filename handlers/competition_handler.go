package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/bracketlab/bracket-engine/middleware"
	"github.com/bracketlab/bracket-engine/models"
	"github.com/bracketlab/bracket-engine/repositories"
	"github.com/bracketlab/bracket-engine/services"
)

type CompetitionHandler struct {
	competitionService services.CompetitionService
}

func NewCompetitionHandler(cs services.CompetitionService) *CompetitionHandler {
	return &CompetitionHandler{competitionService: cs}
}

// CreateHandler handles POST /competitions
func (h *CompetitionHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	actorID, err := middleware.GetActorIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to create a competition")
		return
	}

	var input services.CreateCompetitionInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	comp, err := h.competitionService.Create(r.Context(), input, actorID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"competition": comp}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetByIDHandler handles GET /competitions/{competitionID}
func (h *CompetitionHandler) GetByIDHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	comp, err := h.competitionService.GetByID(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"competition": comp}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListHandler handles GET /competitions
func (h *CompetitionHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	var filter repositories.ListCompetitionsFilter
	query := r.URL.Query()

	if statusStr := query.Get("status"); statusStr != "" {
		status := models.CompetitionStatus(statusStr)
		filter.Status = &status
	}
	if formatStr := query.Get("format"); formatStr != "" {
		format := models.CompetitionFormat(formatStr)
		if !format.Valid() {
			badRequestResponse(w, r, errors.New("invalid format query parameter"))
			return
		}
		filter.Format = &format
	}
	filter.Limit = 20
	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filter.Limit = limit
		} else {
			badRequestResponse(w, r, errors.New("invalid limit query parameter"))
			return
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		} else {
			badRequestResponse(w, r, errors.New("invalid offset query parameter"))
			return
		}
	}

	comps, err := h.competitionService.List(r.Context(), filter)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"competitions": comps}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// UpdateStatusHandler handles PATCH /competitions/{competitionID}/status
func (h *CompetitionHandler) UpdateStatusHandler(w http.ResponseWriter, r *http.Request) {
	actorID, err := middleware.GetActorIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}
	id, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Status models.CompetitionStatus `json:"status"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	comp, err := h.competitionService.UpdateStatus(r.Context(), id, input.Status, actorID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"competition": comp}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// AddEntrantHandler handles POST /competitions/{competitionID}/entrants
func (h *CompetitionHandler) AddEntrantHandler(w http.ResponseWriter, r *http.Request) {
	actorID, err := middleware.GetActorIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}
	id, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.AddEntrantInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	entrant, err := h.competitionService.AddEntrant(r.Context(), id, input, actorID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"entrant": entrant}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// UpdateEntrantStatusHandler handles PATCH /competitions/{competitionID}/entrants/{entrantID}/status
func (h *CompetitionHandler) UpdateEntrantStatusHandler(w http.ResponseWriter, r *http.Request) {
	actorID, err := middleware.GetActorIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}
	competitionID, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	entrantID, err := getIDFromURL(r, "entrantID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Status models.EntrantStatus `json:"status"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	entrant, err := h.competitionService.UpdateEntrantStatus(r.Context(), competitionID, entrantID, input.Status, actorID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"entrant": entrant}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// SetEntrantSeedHandler handles PUT /competitions/{competitionID}/entrants/{entrantID}/seed
func (h *CompetitionHandler) SetEntrantSeedHandler(w http.ResponseWriter, r *http.Request) {
	actorID, err := middleware.GetActorIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}
	competitionID, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	entrantID, err := getIDFromURL(r, "entrantID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Seed int `json:"seed"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	entrant, err := h.competitionService.SetEntrantSeed(r.Context(), competitionID, entrantID, input.Seed, actorID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"entrant": entrant}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GenerateBracketHandler handles POST /competitions/{competitionID}/generate
func (h *CompetitionHandler) GenerateBracketHandler(w http.ResponseWriter, r *http.Request) {
	actorID, err := middleware.GetActorIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}
	id, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	comp, err := h.competitionService.GenerateBracket(r.Context(), id, actorID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"competition": comp}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// StartHandler handles POST /competitions/{competitionID}/start
func (h *CompetitionHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	actorID, err := middleware.GetActorIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}
	id, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	comp, err := h.competitionService.Start(r.Context(), id, actorID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"competition": comp}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
