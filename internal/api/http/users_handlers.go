package http

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	authmw "github.com/mind-engage/mindengage-scenarios/internal/auth/middleware"
	"github.com/mind-engage/mindengage-scenarios/internal/logger"
	"github.com/mind-engage/mindengage-scenarios/internal/scenario"
)

type userRow struct {
	ID       string `json:"id" validate:"required"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email" validate:"omitempty,email"`
	Role     string `json:"role" validate:"omitempty,oneof=student teacher admin"` // usually "student"
	Password string `json:"password,omitempty"`                                    // plaintext optional (LAN-only)
}

// POST /users/bulk  JSON array, or multipart file= (CSV/JSON)
// Learners must exist here for the scoreboard to show names and emails.
func BulkUpsertUsersHandler(users authmw.UserWriter, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rows []userRow
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			f, _, err := r.FormFile("file")
			if err != nil {
				writeError(w, r, log, badRequest("file required"))
				return
			}
			defer f.Close()
			rows, err = decodeUserFile(f)
			if err != nil {
				writeError(w, r, log, badRequest(err.Error()))
				return
			}
		} else if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			writeError(w, r, log, badRequest("expected JSON array or multipart file"))
			return
		}

		inserted, updated := 0, 0
		for i := range rows {
			row := rows[i]
			if row.Username == "" {
				row.Username = row.ID
			}
			if row.Role == "" {
				row.Role = "student"
			}
			if err := validate.Struct(row); err != nil {
				writeError(w, r, log, err)
				return
			}
			u := scenario.User{ID: row.ID, Username: row.Username, Name: row.Name, Email: row.Email, Role: row.Role}
			existing, err := users.GetUser(r.Context(), row.ID)
			switch {
			case err == nil:
				u.PasswordHash = existing.PasswordHash
			case !errors.Is(err, scenario.ErrNotFound):
				writeError(w, r, log, err)
				return
			case row.Password == "":
				writeError(w, r, log, badRequest("password required for new user: "+row.Username))
				return
			}
			if row.Password != "" {
				b, err := bcrypt.GenerateFromPassword([]byte(row.Password), bcrypt.DefaultCost)
				if err != nil {
					writeError(w, r, log, err)
					return
				}
				u.PasswordHash = string(b)
			}
			if err := users.UpsertUser(r.Context(), u); err != nil {
				writeError(w, r, log, err)
				return
			}
			if existing.ID != "" {
				updated++
			} else {
				inserted++
			}
		}
		respondJSON(w, http.StatusOK, map[string]int{"inserted": inserted, "updated": updated})
	}
}

// decodeUserFile sniffs JSON vs CSV by the first non-space byte.
func decodeUserFile(r io.Reader) ([]userRow, error) {
	br := bufio.NewReader(r)
	for {
		b, err := br.Peek(1)
		if err != nil {
			return nil, errors.New("empty file")
		}
		if b[0] == ' ' || b[0] == '\n' || b[0] == '\r' || b[0] == '\t' {
			_, _ = br.ReadByte()
			continue
		}
		if b[0] == '[' {
			var rows []userRow
			if err := json.NewDecoder(br).Decode(&rows); err != nil {
				return nil, errors.New("bad json")
			}
			return rows, nil
		}
		return parseCSV(br)
	}
}

func parseCSV(r io.Reader) ([]userRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	hdr, err := cr.Read()
	if err != nil {
		return nil, err
	}
	idx := map[string]int{}
	for i, h := range hdr {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := idx["id"]; !ok {
		return nil, errors.New("missing column: id")
	}
	col := func(rec []string, name string) string {
		if i, ok := idx[name]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}
	var rows []userRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, userRow{
			ID:       col(rec, "id"),
			Username: col(rec, "username"),
			Name:     col(rec, "name"),
			Email:    col(rec, "email"),
			Role:     strings.ToLower(col(rec, "role")),
			Password: col(rec, "password"),
		})
	}
	return rows, nil
}

type changePasswordReq struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password" validate:"required,min=4"`
}

// POST /users/change-password
func ChangePasswordHandler(users authmw.UserWriter, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req changePasswordReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, log, badRequest("bad json"))
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, r, log, err)
			return
		}
		u, err := users.GetUser(r.Context(), authmw.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.OldPassword)) != nil {
			writeError(w, r, log, apiError{Status: http.StatusForbidden, Code: "forbidden", Message: "incorrect old password"})
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		u.PasswordHash = string(hash)
		if err := users.UpsertUser(r.Context(), u); err != nil {
			writeError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
