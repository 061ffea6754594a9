package delivery

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartition(t *testing.T) {
	records := []Record{
		{ID: "1", Status: StatusPending},
		{ID: "2", Status: StatusDelivered},
		{ID: "3", Status: StatusAssigned},
		{ID: "4", Status: StatusConfirmed},
	}

	board := Partition(records, DefaultRecentLimit)
	assert.Equal(t, []string{"1", "3"}, ids(board.Pending))
	assert.Equal(t, []string{"2", "4"}, ids(board.Recent))
}

func TestPartition_RecentKeepsLastN(t *testing.T) {
	var records []Record
	for i := 1; i <= 14; i++ {
		records = append(records, Record{ID: fmt.Sprint(i), Status: StatusDelivered})
	}

	board := Partition(records, 10)
	assert.Len(t, board.Recent, 10)
	assert.Equal(t, "5", board.Recent[0].ID)
	assert.Equal(t, "14", board.Recent[9].ID)
	assert.Empty(t, board.Pending)
}

func TestPartition_Empty(t *testing.T) {
	board := Partition(nil, 10)
	assert.NotNil(t, board.Pending)
	assert.NotNil(t, board.Recent)
}

func ids(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}
