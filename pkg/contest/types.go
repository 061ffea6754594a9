package contest

// Submission is a single attempt by a team on a problem as reported by the
// contest API. Submissions never change once received.
type Submission struct {
	ID          string `json:"id"`
	TeamID      string `json:"team_id"`
	ProblemID   string `json:"problem_id"`
	LanguageID  string `json:"language_id,omitempty"`
	Time        string `json:"time"`
	ContestTime string `json:"contest_time,omitempty"`
}

// Judgement is a verdict attached to a submission.
type Judgement struct {
	ID              string `json:"id,omitempty"`
	SubmissionID    string `json:"submission_id"`
	JudgementTypeID string `json:"judgement_type_id"`
	StartTime       string `json:"start_time,omitempty"`
	EndTime         string `json:"end_time,omitempty"`
	Valid           *bool  `json:"valid,omitempty"`
}

const JudgementAccepted = "AC"

func (j Judgement) Accepted() bool {
	return j.JudgementTypeID == JudgementAccepted
}

// IsValid reports whether the judgement counts. Feeds that do not carry the
// flag are treated as valid.
func (j Judgement) IsValid() bool {
	return j.Valid == nil || *j.Valid
}

type Team struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
}

func (t Team) Title() string {
	if t.DisplayName != "" {
		return t.DisplayName
	}
	return t.Name
}

type Problem struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
	Name  string `json:"name"`
	RGB   string `json:"rgb,omitempty"`
	Color string `json:"color,omitempty"`
}

// Letter is the short display label of the problem.
func (p Problem) Letter() string {
	if p.Label != "" {
		return p.Label
	}
	return p.ID
}

// Snapshot is one poll of the aggregating proxy. A nil collection means the
// proxy did not deliver that endpoint.
type Snapshot struct {
	Submissions []Submission   `json:"submissions"`
	Judgements  []Judgement    `json:"judgements"`
	Teams       []Team         `json:"teams"`
	Problems    []Problem      `json:"problems"`
	Info        map[string]any `json:"info,omitempty"`
}

// Complete reports whether every required collection is present.
func (s *Snapshot) Complete() bool {
	return s != nil &&
		s.Submissions != nil &&
		s.Judgements != nil &&
		s.Teams != nil &&
		s.Problems != nil
}
