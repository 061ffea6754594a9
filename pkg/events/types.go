package events

// DeliveredEvent is published after a balloon has been marked delivered. It
// is the print/notify request consumed by the dispatch sinks.
type DeliveredEvent struct {
	DeliveryID         string `json:"deliveryId"`
	Key                string `json:"key"`
	Team               string `json:"team"`
	TeamID             string `json:"teamId"`
	Problem            string `json:"problem"`
	ProblemLetter      string `json:"problemLetter"`
	ProblemColor       string `json:"problemColor"`
	ProblemRGB         string `json:"problemRgb"`
	IsFirstSolve       bool   `json:"isFirstSolve"`
	IsFirstACInContest bool   `json:"isFirstACInContest"`
	DeliveredAt        string `json:"deliveredAt"`
	Notes              string `json:"notes"`
}

type PrintStatus string

const (
	PrintStatusPrinted PrintStatus = "printed"
	PrintStatusFailed  PrintStatus = "failed"
)

// PrintResultEvent is emitted by the print service once a job finished.
type PrintResultEvent struct {
	DeliveryID string      `json:"deliveryId"`
	TeamID     string      `json:"teamId"`
	ProblemID  string      `json:"problemId"`
	Status     PrintStatus `json:"status"`
	Message    string      `json:"message,omitempty"`
	Timestamp  string      `json:"timestamp"`
}
