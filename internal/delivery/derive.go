package delivery

import (
	"fmt"
	"strings"

	"github.com/CDeX-Labs/CDeX-Balloon-Service/pkg/contest"
)

const noteFirstACInContest = "First AC in contest!"

// Derive turns a snapshot into the ordered list of balloons owed, one per
// (team, problem) pair, using the first accepted submission of each pair.
// Pairs found in delivered are reported as delivered. Derive has no side
// effects and returns an empty list for an incomplete snapshot.
func Derive(snapshot *contest.Snapshot, delivered KeySet) []Record {
	records := make([]Record, 0)
	if !snapshot.Complete() {
		return records
	}

	teams := make(map[string]contest.Team, len(snapshot.Teams))
	for _, t := range snapshot.Teams {
		teams[t.ID] = t
	}
	problems := make(map[string]contest.Problem, len(snapshot.Problems))
	for _, p := range snapshot.Problems {
		problems[p.ID] = p
	}
	judgements := authoritativeJudgements(snapshot.Judgements)

	emitted := make(map[string]struct{})
	solvedProblems := make(map[string]struct{})
	solvedTeams := make(map[string]struct{})

	for _, sub := range sortSubmissions(snapshot.Submissions) {
		judgement, ok := judgements[sub.ID]
		if !ok || !judgement.Accepted() {
			continue
		}
		team, ok := teams[sub.TeamID]
		if !ok {
			continue
		}
		problem, ok := problems[sub.ProblemID]
		if !ok {
			continue
		}

		key := PairKey(sub.TeamID, sub.ProblemID)
		if _, dup := emitted[key]; dup {
			continue
		}

		_, problemSolved := solvedProblems[sub.ProblemID]
		_, teamSolved := solvedTeams[sub.TeamID]

		rec := Record{
			ID:                 key,
			TeamID:             sub.TeamID,
			TeamName:           team.Title(),
			ProblemID:          sub.ProblemID,
			ProblemLetter:      problem.Letter(),
			ProblemName:        problem.Name,
			ProblemColor:       problem.Color,
			ProblemRGB:         problem.RGB,
			SubmissionID:       sub.ID,
			RequestedAt:        sub.Time,
			Status:             StatusPending,
			IsFirstSolve:       !problemSolved,
			IsFirstTeamSolve:   !teamSolved,
			IsFirstACInContest: len(records) == 0,
		}
		if delivered.Has(key) {
			// Approximation: the real delivery time is not persisted.
			rec.Status = StatusDelivered
			rec.DeliveredAt = sub.Time
		}
		rec.Notes = buildNotes(rec)

		records = append(records, rec)
		emitted[key] = struct{}{}
		solvedProblems[sub.ProblemID] = struct{}{}
		solvedTeams[sub.TeamID] = struct{}{}
	}

	return records
}

func buildNotes(r Record) string {
	var segments []string
	if r.IsFirstACInContest {
		segments = append(segments, noteFirstACInContest)
	}
	if r.IsFirstSolve {
		segments = append(segments, fmt.Sprintf("First solve of problem %s!", r.ProblemLetter))
	}
	if r.IsFirstTeamSolve {
		// flagged on the record, no text
		segments = append(segments, "")
	}

	notes := segments[:0]
	for _, s := range segments {
		if s != "" {
			notes = append(notes, s)
		}
	}
	return strings.Join(notes, " | ")
}
