package delivery

import (
	"sort"
	"strconv"
	"strings"

	"github.com/CDeX-Labs/CDeX-Balloon-Service/pkg/contest"
)

// CompareIDs orders ids numerically when both parse as integers and
// lexicographically otherwise.
func CompareIDs(a, b string) int {
	na, errA := strconv.ParseInt(strings.TrimSpace(a), 10, 64)
	nb, errB := strconv.ParseInt(strings.TrimSpace(b), 10, 64)
	if errA == nil && errB == nil {
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}

// sortSubmissions returns a copy of subs in submission order. Ties keep the
// order in which the feed delivered them.
func sortSubmissions(subs []contest.Submission) []contest.Submission {
	sorted := make([]contest.Submission, len(subs))
	copy(sorted, subs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return CompareIDs(sorted[i].ID, sorted[j].ID) < 0
	})
	return sorted
}

// authoritativeJudgements picks one judgement per submission. A valid
// judgement always beats an invalid one, then the highest judgement id wins.
// Equal candidates fall back to the later one in feed order.
func authoritativeJudgements(judgements []contest.Judgement) map[string]contest.Judgement {
	out := make(map[string]contest.Judgement, len(judgements))
	for _, j := range judgements {
		current, ok := out[j.SubmissionID]
		if !ok || supersedes(j, current) {
			out[j.SubmissionID] = j
		}
	}
	return out
}

func supersedes(next, current contest.Judgement) bool {
	if next.IsValid() != current.IsValid() {
		return next.IsValid()
	}
	return CompareIDs(next.ID, current.ID) >= 0
}
