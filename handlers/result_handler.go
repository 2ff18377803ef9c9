package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/bracketlab/bracket-engine/middleware"
	"github.com/bracketlab/bracket-engine/services"
)

type ResultHandler struct {
	resultService services.ResultService
}

func NewResultHandler(rs services.ResultService) *ResultHandler {
	return &ResultHandler{resultService: rs}
}

// SubmitResultHandler handles POST /competitions/{competitionID}/nodes/{nodeID}/result
func (h *ResultHandler) SubmitResultHandler(w http.ResponseWriter, r *http.Request) {
	actorID, err := middleware.GetActorIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to submit a result")
		return
	}
	competitionID, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	nodeID, err := getIDFromURL(r, "nodeID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.GameResultInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.ScoreA < 0 || input.ScoreB < 0 {
		badRequestResponse(w, r, errors.New("scores must be non-negative"))
		return
	}

	outcome, err := h.resultService.SubmitResult(r.Context(), competitionID, nodeID, input, actorID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{
		"node":             outcome.Node,
		"updated_nodes":    outcome.UpdatedNodes,
		"created_nodes":    outcome.CreatedNodes,
		"updated_entrants": outcome.UpdatedEntrants,
		"completed":        outcome.Completed,
		"duplicate":        outcome.Duplicate,
	}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ForfeitHandler handles POST /competitions/{competitionID}/nodes/{nodeID}/forfeit
func (h *ResultHandler) ForfeitHandler(w http.ResponseWriter, r *http.Request) {
	actorID, err := middleware.GetActorIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to record a forfeit")
		return
	}
	competitionID, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	nodeID, err := getIDFromURL(r, "nodeID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.ForfeitInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.EntrantID < 1 {
		badRequestResponse(w, r, errors.New("entrant_id is required"))
		return
	}

	outcome, err := h.resultService.Forfeit(r.Context(), competitionID, nodeID, input, actorID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{
		"node":      outcome.Node,
		"completed": outcome.Completed,
		"duplicate": outcome.Duplicate,
	}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// StandingsHandler handles GET /competitions/{competitionID}/standings
func (h *ResultHandler) StandingsHandler(w http.ResponseWriter, r *http.Request) {
	competitionID, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var group *string
	if g := r.URL.Query().Get("group"); g != "" {
		group = &g
	}

	entrants, err := h.resultService.Standings(r.Context(), competitionID, group)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"standings": entrants}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// SchedulableHandler handles GET /competitions/{competitionID}/nodes/schedulable
func (h *ResultHandler) SchedulableHandler(w http.ResponseWriter, r *http.Request) {
	competitionID, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		} else {
			badRequestResponse(w, r, errors.New("invalid limit query parameter"))
			return
		}
	}

	nodes, err := h.resultService.ListSchedulable(r.Context(), competitionID, limit)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"nodes": nodes}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
