package scenario

import (
	"sort"
	"time"
)

type AttemptSummary struct {
	AttemptID   string     `json:"attempt_id"`
	AttemptNo   int        `json:"attempt_no"`
	Status      Status     `json:"status"`
	Score       int        `json:"score"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	// DurationSec is nil until the attempt completes.
	DurationSec *int64 `json:"duration_sec"`
}

type UserAttempts struct {
	UserID   string           `json:"user_id"`
	Name     string           `json:"name"`
	Email    string           `json:"email"`
	Attempts []AttemptSummary `json:"attempts"`
	// BestScore is the max over COMPLETE attempts, nil if there are none.
	BestScore *int `json:"best_score"`
}

// BuildScoreboard groups attempts by learner. Attempts are numbered 1..n in
// StartedAt order per learner; learners are ordered by their first start.
func BuildScoreboard(recs []AttemptRecord) []UserAttempts {
	sorted := make([]AttemptRecord, len(recs))
	copy(sorted, recs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].StartedAt.Equal(sorted[j].StartedAt) {
			return sorted[i].StartedAt.Before(sorted[j].StartedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	out := []UserAttempts{}
	idx := map[string]int{}
	for _, r := range sorted {
		i, ok := idx[r.UserID]
		if !ok {
			i = len(out)
			idx[r.UserID] = i
			out = append(out, UserAttempts{UserID: r.UserID, Name: r.Name, Email: r.Email})
		}
		u := &out[i]
		s := AttemptSummary{
			AttemptID:   r.ID,
			AttemptNo:   len(u.Attempts) + 1,
			Status:      r.Status,
			Score:       r.Score,
			StartedAt:   r.StartedAt,
			CompletedAt: r.CompletedAt,
		}
		if r.Complete() {
			if r.CompletedAt != nil {
				d := int64(r.CompletedAt.Sub(r.StartedAt) / time.Second)
				s.DurationSec = &d
			}
			if u.BestScore == nil || r.Score > *u.BestScore {
				best := r.Score
				u.BestScore = &best
			}
		}
		u.Attempts = append(u.Attempts, s)
	}
	return out
}
