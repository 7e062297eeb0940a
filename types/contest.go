package types

import "time"

// DefaultContestProblemPoints is the value of a contest problem when the
// contest does not assign one.
const DefaultContestProblemPoints = 100

// ContestStatus describes where a contest is relative to its time window.
type ContestStatus string

const (
	ContestUpcoming ContestStatus = "upcoming"
	ContestOngoing  ContestStatus = "ongoing"
	ContestEnded    ContestStatus = "ended"
)

// Contest is a timed competition over a fixed set of problems.
type Contest struct {
	// ID is the unique identifier of the contest.
	ID int `json:"id" db:"id"`

	// Title is the human-readable name of the contest.
	Title string `json:"title" db:"title"`

	// Description is a free-form contest description.
	Description string `json:"description" db:"description"`

	// StartTime is the first instant at which submissions are accepted.
	StartTime time.Time `json:"start_time" db:"start_time"`

	// EndTime is the last instant at which submissions are accepted.
	EndTime time.Time `json:"end_time" db:"end_time"`

	// CreatedBy identifies the user who created the contest.
	CreatedBy int `json:"created_by" db:"created_by"`

	// IsPublic controls whether users may register themselves.
	IsPublic bool `json:"is_public" db:"is_public"`

	// MaxParticipants caps registrations. Zero means unlimited.
	MaxParticipants int `json:"max_participants" db:"max_participants"`

	// Problems is the ordered problem set of the contest.
	Problems []ContestProblem `json:"problems" db:"-"`

	// Participants lists the registered users.
	Participants []Participant `json:"participants,omitempty" db:"-"`

	// CreatedAt is the timestamp at which the contest was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ContestProblem is a problem's membership in a contest.
type ContestProblem struct {
	ProblemID int `json:"problem_id" db:"problem_id"`
	Points    int `json:"points" db:"points"`
	Order     int `json:"order" db:"ordinal"`
}

// Participant is a user registered for a contest.
type Participant struct {
	UserID       int       `json:"user_id" db:"user_id"`
	RegisteredAt time.Time `json:"registered_at" db:"registered_at"`
}

// IsActive reports whether submissions are accepted at t.
func (c Contest) IsActive(t time.Time) bool {
	return !t.Before(c.StartTime) && !t.After(c.EndTime)
}

// Status returns the contest status at t.
func (c Contest) Status(t time.Time) ContestStatus {
	switch {
	case t.Before(c.StartTime):
		return ContestUpcoming
	case t.After(c.EndTime):
		return ContestEnded
	default:
		return ContestOngoing
	}
}

// Problem returns the contest's entry for problemID.
func (c Contest) Problem(problemID int) (ContestProblem, bool) {
	for _, p := range c.Problems {
		if p.ProblemID == problemID {
			return p, true
		}
	}
	return ContestProblem{}, false
}

// HasParticipant reports whether userID is registered.
func (c Contest) HasParticipant(userID int) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// LeaderboardEntry is one participant's standing in a contest.
type LeaderboardEntry struct {
	Rank         int            `json:"rank"`
	UserID       int            `json:"user_id"`
	Solved       int            `json:"solved"`
	Score        int            `json:"score"`
	Penalty      int            `json:"penalty"`
	FirstSolveAt *time.Time     `json:"first_solve_at,omitempty"`
	Problems     []ProblemStand `json:"problems"`
}

// ProblemStand summarises a participant's attempts on one contest problem.
type ProblemStand struct {
	ProblemID  int        `json:"problem_id"`
	Attempts   int        `json:"attempts"`
	Solved     bool       `json:"solved"`
	SolvedAt   *time.Time `json:"solved_at,omitempty"`
	Penalty    int        `json:"penalty"`
	Points     int        `json:"points"`
	FirstSolve bool       `json:"first_solve"`
}

// UserStats summarises a user's judged submissions.
type UserStats struct {
	TotalSubmissions    int            `json:"total_submissions"`
	AcceptedSubmissions int            `json:"accepted_submissions"`
	AcceptanceRate      float64        `json:"acceptance_rate"`
	SolvedProblems      int            `json:"solved_problems"`
	VerdictBreakdown    map[string]int `json:"verdict_breakdown"`
}
