package scenario

import "time"

type NextAction string

const (
	ActionContinue NextAction = "CONTINUE"
	ActionEnd      NextAction = "END"
)

type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusComplete   Status = "COMPLETE"
)

// Asset kinds a scenario can reference. Keys are opaque to the engine.
const (
	AssetBackground = "background"
	AssetAvatar     = "avatar"
)

type Scenario struct {
	ID              string    `json:"id" validate:"required"`
	Title           string    `json:"title" validate:"required"`
	Description     string    `json:"description,omitempty"`
	BackgroundAsset string    `json:"background_asset,omitempty"`
	AvatarAsset     string    `json:"avatar_asset,omitempty"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
}

type Choice struct {
	ID             string     `json:"id" validate:"required"`
	NodeID         string     `json:"node_id,omitempty"`
	Text           string     `json:"text" validate:"required"`
	Points         int        `json:"points"`
	Feedback       string     `json:"feedback,omitempty"`
	NextAction     NextAction `json:"next_action" validate:"required,oneof=CONTINUE END"`
	NextDecisionID *string    `json:"next_decision_id,omitempty"`
}

type DecisionNode struct {
	ID            string   `json:"id" validate:"required"`
	ScenarioID    string   `json:"scenario_id,omitempty"`
	DecisionOrder int      `json:"decision_order"`
	Prompt        string   `json:"prompt" validate:"required"`
	Choices       []Choice `json:"choices" validate:"required,min=1,dive"`
}

type Attempt struct {
	ID            string     `json:"id"`
	ScenarioID    string     `json:"scenario_id"`
	UserID        string     `json:"user_id"`
	Status        Status     `json:"status"`
	Score         int        `json:"score"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CurrentNodeID *string    `json:"current_node_id,omitempty"`

	// ResponseCount doubles as the row version for optimistic updates.
	ResponseCount int `json:"response_count"`
}

func (a Attempt) Complete() bool { return a.Status == StatusComplete }

// AtNode reports whether the attempt is currently positioned on nodeID.
func (a Attempt) AtNode(nodeID string) bool {
	return a.CurrentNodeID != nil && *a.CurrentNodeID == nodeID
}

// ChoiceResponse is one submitted choice. Rows are append-only; the resolved
// outcome is stored alongside so a replay returns the original result.
type ChoiceResponse struct {
	AttemptID      string    `json:"attempt_id"`
	Seq            int       `json:"seq"`
	DecisionNodeID string    `json:"decision_node_id"`
	ChoiceID       string    `json:"choice_id"`
	PointsAwarded  int       `json:"points_awarded"`
	NextDecisionID *string   `json:"next_decision_id,omitempty"`
	Completed      bool      `json:"completed"`
	ScoreAfter     int       `json:"score_after"`
	RespondedAt    time.Time `json:"responded_at"`
}

// User is the identity-provider projection the engine reads.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Name         string `json:"name,omitempty"`
	Email        string `json:"email,omitempty"`
	Role         string `json:"role"`
	PasswordHash string `json:"-"`
}

// AttemptRecord is an attempt joined with the learner's display fields.
type AttemptRecord struct {
	Attempt
	Name  string
	Email string
}

type ScenarioSummary struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	NodeCount   int       `json:"node_count"`
	CreatedAt   time.Time `json:"created_at"`
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
