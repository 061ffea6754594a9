package delivery

const DefaultRecentLimit = 10

// Board is the split of records shown to runners.
type Board struct {
	Pending []Record `json:"pending"`
	Recent  []Record `json:"recent"`
}

// Partition splits records into open balloons and the last limit finished
// ones. Both lists keep the input order.
func Partition(records []Record, limit int) Board {
	if limit < 0 {
		limit = 0
	}

	board := Board{
		Pending: make([]Record, 0),
		Recent:  make([]Record, 0),
	}
	for _, r := range records {
		switch {
		case r.Status.Open():
			board.Pending = append(board.Pending, r)
		case r.Status.Done():
			board.Recent = append(board.Recent, r)
		}
	}

	if len(board.Recent) > limit {
		board.Recent = board.Recent[len(board.Recent)-limit:]
	}
	return board
}
