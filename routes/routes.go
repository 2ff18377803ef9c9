package routes

import (
	"net/http"

	"github.com/bracketlab/bracket-engine/handlers"
	"github.com/bracketlab/bracket-engine/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes wires every HTTP surface onto the router. Reads are public;
// anything that mutates a competition requires an authenticated actor, and
// lifecycle operations are restricted to organizer and admin roles.
func SetupRoutes(
	router *chi.Mux,
	auth *middleware.Authenticator,
	competitionHandler *handlers.CompetitionHandler,
	resultHandler *handlers.ResultHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	router.Route("/competitions", func(r chi.Router) {
		r.Get("/", competitionHandler.ListHandler)
		r.Get("/{competitionID}", competitionHandler.GetByIDHandler)
		r.Get("/{competitionID}/standings", resultHandler.StandingsHandler)
		r.Get("/{competitionID}/nodes/schedulable", resultHandler.SchedulableHandler)

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)

			r.Post("/{competitionID}/entrants", competitionHandler.AddEntrantHandler)
			r.Patch("/{competitionID}/entrants/{entrantID}/status", competitionHandler.UpdateEntrantStatusHandler)

			r.Post("/{competitionID}/nodes/{nodeID}/result", resultHandler.SubmitResultHandler)
			r.Post("/{competitionID}/nodes/{nodeID}/forfeit", resultHandler.ForfeitHandler)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Authorize("organizer", "admin"))

				r.Post("/", competitionHandler.CreateHandler)
				r.Patch("/{competitionID}/status", competitionHandler.UpdateStatusHandler)
				r.Put("/{competitionID}/entrants/{entrantID}/seed", competitionHandler.SetEntrantSeedHandler)
				r.Post("/{competitionID}/generate", competitionHandler.GenerateBracketHandler)
				r.Post("/{competitionID}/start", competitionHandler.StartHandler)
			})
		})
	})

	router.Get("/ws/competitions/{competitionID}", webSocketHandler.ServeWs)
}
