package handlers

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/nikhil/doussel/internal/logger"
	importService "github.com/nikhil/doussel/internal/service/imports"
)

// maxUploadBytes caps CSV uploads.
const maxUploadBytes = 10 << 20

type ImportHandler struct {
	Service *importService.ImportService
	Log     *logger.Logger
}

func NewImportHandler(service *importService.ImportService) *ImportHandler {
	return &ImportHandler{Service: service, Log: logger.NewLogger("import-handler")}
}

type importJSONRequest struct {
	TeamID       string              `json:"team_id"`
	ResourceType string              `json:"resource_type"`
	Rows         []importService.Row `json:"rows"`
}

type commitRequest struct {
	TeamID       string `json:"team_id"`
	ResourceType string `json:"resource_type"`
}

// readImport extracts the team, resource type and rows from a JSON body, a
// raw CSV body (team_id and resource_type in the query string) or a
// multipart upload with a "file" part.
func readImport(w http.ResponseWriter, r *http.Request) (teamID, resourceType string, rows []importService.Row, err error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case mediaType == "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err = r.ParseMultipartForm(maxUploadBytes); err != nil {
			return
		}
		file, _, ferr := r.FormFile("file")
		if ferr != nil {
			err = ferr
			return
		}
		defer file.Close()
		rows, err = importService.ParseCSV(file)
		return r.FormValue("team_id"), r.FormValue("resource_type"), rows, err
	case mediaType == "text/csv" || strings.HasSuffix(mediaType, "/csv"):
		q := r.URL.Query()
		rows, err = importService.ParseCSV(io.LimitReader(r.Body, maxUploadBytes))
		return q.Get("team_id"), q.Get("resource_type"), rows, err
	default:
		var req importJSONRequest
		if err = json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes)).Decode(&req); err != nil {
			return
		}
		return req.TeamID, req.ResourceType, req.Rows, nil
	}
}

// Stage accepts a batch of rows into the staging area.
func (h *ImportHandler) Stage(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	teamID, resourceType, rows, err := readImport(w, r)
	if err != nil {
		respondWithServiceError(w, r, h.Log, asBadRequest(err))
		return
	}
	res, err := h.Service.StageRows(r.Context(), claims.UserID, teamID, resourceType, rows)
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, res)
}

func (h *ImportHandler) Standardize(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	row, err := h.Service.Standardize(r.Context(), claims.UserID, mux.Vars(r)["id"])
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, row)
}

// Match answers 200 with a null body when no lease is close enough.
func (h *ImportHandler) Match(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	res, err := h.Service.FuzzyMatch(r.Context(), claims.UserID, mux.Vars(r)["id"])
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"match": res})
}

func (h *ImportHandler) Commit(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req commitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.Service.Commit(r.Context(), claims.UserID, req.TeamID, req.ResourceType)
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}
