package delivery

import "github.com/CDeX-Labs/CDeX-Balloon-Service/pkg/events"

type Status string

const (
	StatusPending   Status = "pending"
	StatusAssigned  Status = "assigned"
	StatusDelivered Status = "delivered"
	StatusConfirmed Status = "confirmed"
)

// Open reports whether a balloon still has to be brought to the team.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusAssigned
}

// Done reports whether the balloon has reached the team.
func (s Status) Done() bool {
	return s == StatusDelivered || s == StatusConfirmed
}

// Record is one balloon owed to a team for a solved problem.
type Record struct {
	ID                 string `json:"id"`
	TeamID             string `json:"teamId"`
	TeamName           string `json:"teamName"`
	ProblemID          string `json:"problemId"`
	ProblemLetter      string `json:"problemLetter"`
	ProblemName        string `json:"problemName"`
	ProblemColor       string `json:"problemColor,omitempty"`
	ProblemRGB         string `json:"problemRgb,omitempty"`
	SubmissionID       string `json:"submissionId"`
	RequestedAt        string `json:"requestedAt"`
	Status             Status `json:"status"`
	DeliveredAt        string `json:"deliveredAt,omitempty"`
	Notes              string `json:"notes"`
	IsFirstSolve       bool   `json:"isFirstSolve"`
	IsFirstTeamSolve   bool   `json:"isFirstTeamSolve"`
	IsFirstACInContest bool   `json:"isFirstACInContest"`
}

// PairKey identifies a (team, problem) pair. It is also the key stored in the
// delivered set.
func PairKey(teamID, problemID string) string {
	return teamID + "-" + problemID
}

func (r Record) Key() string {
	return PairKey(r.TeamID, r.ProblemID)
}

func (r Record) Event() events.DeliveredEvent {
	return events.DeliveredEvent{
		DeliveryID:         r.ID,
		Key:                r.Key(),
		Team:               r.TeamName,
		TeamID:             r.TeamID,
		Problem:            r.ProblemName,
		ProblemLetter:      r.ProblemLetter,
		ProblemColor:       r.ProblemColor,
		ProblemRGB:         r.ProblemRGB,
		IsFirstSolve:       r.IsFirstSolve,
		IsFirstACInContest: r.IsFirstACInContest,
		DeliveredAt:        r.DeliveredAt,
		Notes:              r.Notes,
	}
}

// KeySet is an in-memory view of the delivered set.
type KeySet map[string]struct{}

func NewKeySet(keys ...string) KeySet {
	ks := make(KeySet, len(keys))
	for _, k := range keys {
		ks[k] = struct{}{}
	}
	return ks
}

func (ks KeySet) Has(key string) bool {
	_, ok := ks[key]
	return ok
}

func (ks KeySet) Add(key string) {
	ks[key] = struct{}{}
}

func (ks KeySet) Clone() KeySet {
	out := make(KeySet, len(ks))
	for k := range ks {
		out[k] = struct{}{}
	}
	return out
}
