package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	authmw "github.com/mind-engage/mindengage-scenarios/internal/auth/middleware"
	"github.com/mind-engage/mindengage-scenarios/internal/logger"
	"github.com/mind-engage/mindengage-scenarios/internal/rbac"
	"github.com/mind-engage/mindengage-scenarios/internal/scenario"
)

var errForbidden = apiError{Status: http.StatusForbidden, Code: "forbidden", Message: "not your attempt"}

// POST /scenarios/{scenarioID}/attempts
// The learner is the token subject. 201 for a new attempt, 200 on resume.
func StartAttemptHandler(eng *scenario.Engine, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := authmw.SubjectFromContext(r.Context())
		res, err := eng.StartAttempt(r.Context(), chi.URLParam(r, "scenarioID"), sub)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		status := http.StatusCreated
		if res.Resumed {
			status = http.StatusOK
		}
		respondJSON(w, status, res)
	}
}

// POST /attempts/{attemptID}/responses  {"choice_id": "..."}
func SubmitResponseHandler(eng *scenario.Engine, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ChoiceID string `json:"choice_id" validate:"required"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, log, badRequest("bad json"))
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, r, log, err)
			return
		}
		id := chi.URLParam(r, "attemptID")
		a, err := eng.GetAttempt(r.Context(), id)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		if a.UserID != authmw.SubjectFromContext(r.Context()) {
			writeError(w, r, log, errForbidden)
			return
		}

		res, err := eng.SubmitResponse(r.Context(), id, req.ChoiceID)
		if errors.Is(err, scenario.ErrInvalidState) {
			ae := toAPIError(err)
			respondJSON(w, ae.Status, map[string]any{
				"error":                ae.Code,
				"message":              ae.Message,
				"score":                res.Score,
				"is_scenario_complete": res.IsScenarioComplete,
			})
			return
		}
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}

// GET /attempts/{attemptID}
// Owners see their own attempt; attempt:view-all sees any.
func GetAttemptHandler(eng *scenario.Engine, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, responses, err := eng.History(r.Context(), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		if a.UserID != authmw.SubjectFromContext(r.Context()) && !rbac.Can(r.Context(), "attempt:view-all") {
			writeError(w, r, log, errForbidden)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"attempt": a, "responses": responses})
	}
}

// GET /scenarios/{scenarioID}/score  -> {"score": n|null}
func LatestScoreHandler(eng *scenario.Engine, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		score, ok, err := eng.LatestScore(r.Context(), chi.URLParam(r, "scenarioID"), authmw.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		out := map[string]*int{"score": nil}
		if ok {
			out["score"] = &score
		}
		respondJSON(w, http.StatusOK, out)
	}
}

// GET /scenarios/{scenarioID}/attempts
func ScoreboardHandler(eng *scenario.Engine, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		board, err := eng.Scoreboard(r.Context(), chi.URLParam(r, "scenarioID"))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, board)
	}
}
