package scenario

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-scenarios/internal/db"
	syncx "github.com/mind-engage/mindengage-scenarios/internal/sync"
)

type SQLStore struct {
	db     *sql.DB
	driver db.Driver
	events *syncx.EventRepo
}

func NewSQLStore(dbh *sql.DB, driver db.Driver) *SQLStore {
	return &SQLStore{db: dbh, driver: driver, events: syncx.NewEventRepo(dbh)}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLStore) LoadGraph(ctx context.Context, scenarioID string) (*Graph, error) {
	var sc Scenario
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id,title,description,background_asset,avatar_asset,created_at FROM scenarios WHERE id=$1`,
		scenarioID).Scan(&sc.ID, &sc.Title, &sc.Description, &sc.BackgroundAsset, &sc.AvatarAsset, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("scenario", scenarioID)
		}
		return nil, err
	}
	sc.CreatedAt = fromMillis(created)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id,decision_order,prompt FROM decision_nodes WHERE scenario_id=$1 ORDER BY decision_order`,
		scenarioID)
	if err != nil {
		return nil, err
	}
	var nodes []DecisionNode
	pos := map[string]int{}
	for rows.Next() {
		var n DecisionNode
		if err := rows.Scan(&n.ID, &n.DecisionOrder, &n.Prompt); err != nil {
			rows.Close()
			return nil, err
		}
		pos[n.ID] = len(nodes)
		nodes = append(nodes, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("scenario %q: %w", scenarioID, ErrEmptyScenario)
	}

	crows, err := s.db.QueryContext(ctx,
		`SELECT id,node_id,text,points,feedback,next_action,next_decision_id
		 FROM choices WHERE scenario_id=$1 ORDER BY node_id, position`, scenarioID)
	if err != nil {
		return nil, err
	}
	defer crows.Close()
	for crows.Next() {
		var c Choice
		var action string
		var next sql.NullString
		if err := crows.Scan(&c.ID, &c.NodeID, &c.Text, &c.Points, &c.Feedback, &action, &next); err != nil {
			return nil, err
		}
		c.NextAction = NextAction(action)
		if next.Valid {
			c.NextDecisionID = strPtr(next.String)
		}
		if i, ok := pos[c.NodeID]; ok {
			nodes[i].Choices = append(nodes[i].Choices, c)
		}
	}
	if err := crows.Err(); err != nil {
		return nil, err
	}
	return NewGraph(sc, nodes), nil
}

func (s *SQLStore) PutGraph(ctx context.Context, g *Graph) error {
	if err := g.Validate(); err != nil {
		return err
	}
	sc := g.Scenario()
	created := sc.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM attempts WHERE scenario_id=$1`, sc.ID).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("scenario %q: %w", sc.ID, ErrScenarioInUse)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO scenarios (id,title,description,background_asset,avatar_asset,created_at)
			 VALUES ($1,$2,$3,$4,$5,$6)
			 ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, description=EXCLUDED.description,
			   background_asset=EXCLUDED.background_asset, avatar_asset=EXCLUDED.avatar_asset`,
			sc.ID, sc.Title, sc.Description, sc.BackgroundAsset, sc.AvatarAsset, created.UnixMilli()); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM choices WHERE scenario_id=$1`, sc.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM decision_nodes WHERE scenario_id=$1`, sc.ID); err != nil {
			return err
		}
		for _, n := range g.Nodes() {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO decision_nodes (scenario_id,id,decision_order,prompt) VALUES ($1,$2,$3,$4)`,
				sc.ID, n.ID, n.DecisionOrder, n.Prompt); err != nil {
				return err
			}
			for i, c := range n.Choices {
				var next any
				if c.NextDecisionID != nil {
					next = *c.NextDecisionID
				}
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO choices (scenario_id,id,node_id,position,text,points,feedback,next_action,next_decision_id)
					 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
					sc.ID, c.ID, n.ID, i, c.Text, c.Points, c.Feedback, string(c.NextAction), next); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *SQLStore) ListScenarios(ctx context.Context, opts ListOpts) ([]ScenarioSummary, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	q := strings.ToLower(strings.TrimSpace(opts.Q))
	match := "LOWER(s.title) LIKE $1"
	if s.driver == db.DriverPostgres {
		match = "s.title ILIKE $1"
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.title, s.description, s.created_at,
		        (SELECT COUNT(*) FROM decision_nodes n WHERE n.scenario_id = s.id)
		 FROM scenarios s
		 WHERE `+match+`
		 ORDER BY s.title, s.id
		 LIMIT $2 OFFSET $3`, "%"+q+"%", limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ScenarioSummary{}
	for rows.Next() {
		var sum ScenarioSummary
		var created int64
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.Description, &created, &sum.NodeCount); err != nil {
			return nil, err
		}
		sum.CreatedAt = fromMillis(created)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SQLStore) SetScenarioAsset(ctx context.Context, scenarioID, kind, key string) error {
	var col string
	switch kind {
	case AssetBackground:
		col = "background_asset"
	case AssetAvatar:
		col = "avatar_asset"
	default:
		return fmt.Errorf("unknown asset kind %q", kind)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE scenarios SET `+col+`=$1 WHERE id=$2`, key, scenarioID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("scenario", scenarioID)
	}
	return nil
}

const attemptCols = `id,scenario_id,user_id,status,score,response_count,current_node_id,started_at,completed_at`

func scanAttempt(r rowScanner, extra ...any) (Attempt, error) {
	var a Attempt
	var status string
	var current sql.NullString
	var started int64
	var completed sql.NullInt64
	dest := append([]any{&a.ID, &a.ScenarioID, &a.UserID, &status, &a.Score, &a.ResponseCount, &current, &started, &completed}, extra...)
	if err := r.Scan(dest...); err != nil {
		return Attempt{}, err
	}
	a.Status = Status(status)
	a.StartedAt = fromMillis(started)
	if current.Valid {
		a.CurrentNodeID = strPtr(current.String)
	}
	if completed.Valid {
		t := fromMillis(completed.Int64)
		a.CompletedAt = &t
	}
	return a, nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM attempts WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, notFound("attempt", id)
	}
	return a, err
}

func (s *SQLStore) ActiveAttempt(ctx context.Context, scenarioID, userID string) (Attempt, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx,
		`SELECT `+attemptCols+` FROM attempts WHERE scenario_id=$1 AND user_id=$2 AND status='IN_PROGRESS'`,
		scenarioID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, notFound("active attempt for user", userID)
	}
	return a, err
}

func (s *SQLStore) CreateAttempt(ctx context.Context, a Attempt) (Attempt, bool, error) {
	created := false
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO attempts (id,scenario_id,user_id,status,score,response_count,current_node_id,started_at)
			 VALUES ($1,$2,$3,'IN_PROGRESS',0,0,$4,$5)
			 ON CONFLICT DO NOTHING`,
			a.ID, a.ScenarioID, a.UserID, derefStr(a.CurrentNodeID), a.StartedAt.UnixMilli())
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		created = true
		ev, err := syncx.NewEvent(syncx.EventAttemptStarted, a.ID, map[string]any{
			"scenario_id": a.ScenarioID, "user_id": a.UserID,
		})
		if err != nil {
			return err
		}
		return s.events.AppendTx(ctx, tx, ev)
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			created = false
		} else {
			return Attempt{}, false, err
		}
	}
	if !created {
		winner, err := s.ActiveAttempt(ctx, a.ScenarioID, a.UserID)
		return winner, false, err
	}
	a.Status = StatusInProgress
	a.Score = 0
	a.ResponseCount = 0
	a.StartedAt = fromMillis(a.StartedAt.UnixMilli())
	return a, true, nil
}

const responseCols = `attempt_id,seq,decision_node_id,choice_id,points_awarded,next_decision_id,completed,score_after,responded_at`

func scanResponse(r rowScanner) (ChoiceResponse, error) {
	var cr ChoiceResponse
	var next sql.NullString
	var completed int
	var at int64
	if err := r.Scan(&cr.AttemptID, &cr.Seq, &cr.DecisionNodeID, &cr.ChoiceID, &cr.PointsAwarded,
		&next, &completed, &cr.ScoreAfter, &at); err != nil {
		return ChoiceResponse{}, err
	}
	if next.Valid {
		cr.NextDecisionID = strPtr(next.String)
	}
	cr.Completed = completed != 0
	cr.RespondedAt = fromMillis(at)
	return cr, nil
}

func (s *SQLStore) LastResponseForNode(ctx context.Context, attemptID, nodeID string) (ChoiceResponse, error) {
	cr, err := scanResponse(s.db.QueryRowContext(ctx,
		`SELECT `+responseCols+` FROM choice_responses
		 WHERE attempt_id=$1 AND decision_node_id=$2 ORDER BY seq DESC LIMIT 1`, attemptID, nodeID))
	if errors.Is(err, sql.ErrNoRows) {
		return ChoiceResponse{}, notFound("response for node", nodeID)
	}
	return cr, err
}

func (s *SQLStore) RecordResponse(ctx context.Context, expected Attempt, resp ChoiceResponse, t Transition, now time.Time) (Attempt, ChoiceResponse, error) {
	resp.AttemptID = expected.ID
	resp.Seq = expected.ResponseCount + 1
	resp.NextDecisionID = t.NextDecisionID()
	resp.Completed = t.Complete
	resp.RespondedAt = fromMillis(now.UnixMilli())

	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var next any
		if resp.NextDecisionID != nil {
			next = *resp.NextDecisionID
		}
		completed := 0
		if resp.Completed {
			completed = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO choice_responses (`+responseCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7,0,$8)`,
			resp.AttemptID, resp.Seq, resp.DecisionNodeID, resp.ChoiceID, resp.PointsAwarded,
			next, completed, now.UnixMilli()); err != nil {
			if db.IsUniqueViolation(err) {
				return ErrStaleAttempt
			}
			return err
		}
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(points_awarded),0) FROM choice_responses WHERE attempt_id=$1`,
			resp.AttemptID).Scan(&resp.ScoreAfter); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE choice_responses SET score_after=$1 WHERE attempt_id=$2 AND seq=$3`,
			resp.ScoreAfter, resp.AttemptID, resp.Seq); err != nil {
			return err
		}

		status := StatusInProgress
		var completedAt any
		if resp.Completed {
			status = StatusComplete
			completedAt = now.UnixMilli()
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE attempts SET score=$1, response_count=$2, current_node_id=$3, status=$4, completed_at=$5
			 WHERE id=$6 AND status='IN_PROGRESS' AND response_count=$7`,
			resp.ScoreAfter, resp.Seq, next, string(status), completedAt, expected.ID, expected.ResponseCount)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrStaleAttempt
		}

		ev, err := syncx.NewEvent(syncx.EventChoiceSubmitted, resp.AttemptID, resp)
		if err != nil {
			return err
		}
		if err := s.events.AppendTx(ctx, tx, ev); err != nil {
			return err
		}
		if resp.Completed {
			ev, err := syncx.NewEvent(syncx.EventAttemptCompleted, resp.AttemptID, map[string]any{
				"scenario_id": expected.ScenarioID, "user_id": expected.UserID, "score": resp.ScoreAfter,
			})
			if err != nil {
				return err
			}
			return s.events.AppendTx(ctx, tx, ev)
		}
		return nil
	})
	if err != nil {
		return Attempt{}, ChoiceResponse{}, err
	}
	a, err := s.GetAttempt(ctx, expected.ID)
	if err != nil {
		return Attempt{}, ChoiceResponse{}, err
	}
	return a, resp, nil
}

func (s *SQLStore) Responses(ctx context.Context, attemptID string) ([]ChoiceResponse, error) {
	if _, err := s.GetAttempt(ctx, attemptID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+responseCols+` FROM choice_responses WHERE attempt_id=$1 ORDER BY seq`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ChoiceResponse{}
	for rows.Next() {
		cr, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}

func (s *SQLStore) LatestCompleted(ctx context.Context, scenarioID, userID string) (Attempt, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx,
		`SELECT `+attemptCols+` FROM attempts
		 WHERE scenario_id=$1 AND user_id=$2 AND status='COMPLETE'
		 ORDER BY completed_at DESC, started_at DESC LIMIT 1`, scenarioID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, notFound("completed attempt for user", userID)
	}
	return a, err
}

func (s *SQLStore) ListAttempts(ctx context.Context, scenarioID string) ([]AttemptRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id,a.scenario_id,a.user_id,a.status,a.score,a.response_count,a.current_node_id,a.started_at,a.completed_at,
		        COALESCE(u.name,''), COALESCE(u.email,'')
		 FROM attempts a LEFT JOIN users u ON u.id = a.user_id
		 WHERE a.scenario_id=$1
		 ORDER BY a.started_at, a.id`, scenarioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []AttemptRecord{}
	for rows.Next() {
		var rec AttemptRecord
		a, err := scanAttempt(rows, &rec.Name, &rec.Email)
		if err != nil {
			return nil, err
		}
		rec.Attempt = a
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetUser(ctx context.Context, idOrUsername string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id,username,name,email,role,password_hash FROM users WHERE id=$1 OR username=$1`,
		idOrUsername).Scan(&u.ID, &u.Username, &u.Name, &u.Email, &u.Role, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, notFound("user", idOrUsername)
	}
	return u, err
}

func (s *SQLStore) UpsertUser(ctx context.Context, u User) error {
	if u.ID == "" {
		return fmt.Errorf("user id is required")
	}
	if u.Username == "" {
		u.Username = u.ID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id,username,name,email,role,password_hash,created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (id) DO UPDATE SET username=EXCLUDED.username, name=EXCLUDED.name,
		   email=EXCLUDED.email, role=EXCLUDED.role, password_hash=EXCLUDED.password_hash`,
		u.ID, u.Username, u.Name, u.Email, u.Role, u.PasswordHash, time.Now().UnixMilli())
	return err
}

// Events exposes the store's event log reader.
func (s *SQLStore) Events() *syncx.EventRepo { return s.events }

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
