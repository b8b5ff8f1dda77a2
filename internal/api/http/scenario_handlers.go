package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mind-engage/mindengage-scenarios/internal/logger"
	"github.com/mind-engage/mindengage-scenarios/internal/scenario"
	"github.com/mind-engage/mindengage-scenarios/internal/storage"
)

const maxAssetBytes = 10 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// GET /scenarios?q=&limit=50&offset=0
func ListScenariosHandler(graphs scenario.GraphStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := graphs.ListScenarios(r.Context(), scenario.ListOpts{
			Q:      strings.TrimSpace(r.URL.Query().Get("q")),
			Limit:  parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset: parseIntDefault(r.URL.Query().Get("offset"), 0),
		})
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}

// POST /scenarios  {"scenario": {...}, "decisions": [...]}
// Replaces the scenario's graph until the first attempt exists.
func ImportScenarioHandler(graphs scenario.GraphStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var d scenario.GraphData
		if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
			writeError(w, r, log, badRequest("bad json"))
			return
		}
		if err := validate.Struct(d); err != nil {
			writeError(w, r, log, err)
			return
		}
		g := scenario.GraphFromData(d)
		if err := graphs.PutGraph(r.Context(), g); err != nil {
			writeError(w, r, log, err)
			return
		}
		log.Info("scenario imported", "scenario_id", g.Scenario().ID, "nodes", g.Len())
		respondJSON(w, http.StatusCreated, map[string]any{"id": g.Scenario().ID, "node_count": g.Len()})
	}
}

type scenarioView struct {
	scenario.GraphData
	BackgroundURL string `json:"background_url,omitempty"`
	AvatarURL     string `json:"avatar_url,omitempty"`
}

func newScenarioView(g *scenario.Graph, bs storage.BlobStore) scenarioView {
	v := scenarioView{GraphData: g.Data()}
	if k := v.Scenario.BackgroundAsset; k != "" && bs != nil {
		v.BackgroundURL = bs.URL(k)
	}
	if k := v.Scenario.AvatarAsset; k != "" && bs != nil {
		v.AvatarURL = bs.URL(k)
	}
	return v
}

// GET /scenarios/{scenarioID}
func GetScenarioHandler(graphs scenario.GraphLoader, bs storage.BlobStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, err := graphs.LoadGraph(r.Context(), chi.URLParam(r, "scenarioID"))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, newScenarioView(g, bs))
	}
}

// PUT /scenarios/{scenarioID}/assets/{kind}  multipart "file"
func UploadAssetHandler(graphs scenario.GraphStore, bs storage.BlobStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "scenarioID")
		kind := chi.URLParam(r, "kind")
		if kind != scenario.AssetBackground && kind != scenario.AssetAvatar {
			writeError(w, r, log, badRequest("kind must be background or avatar"))
			return
		}
		if _, err := graphs.LoadGraph(r.Context(), id); err != nil && !errors.Is(err, scenario.ErrEmptyScenario) {
			writeError(w, r, log, err)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxAssetBytes)
		f, hdr, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, log, badRequest("file required"))
			return
		}
		defer f.Close()

		key := "scenarios/" + id + "/" + kind + strings.ToLower(filepath.Ext(hdr.Filename))
		key, err = bs.Put(key, f)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		if err := graphs.SetScenarioAsset(r.Context(), id, kind, key); err != nil {
			writeError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"key": key, "url": bs.URL(key)})
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}
