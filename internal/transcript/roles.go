package transcript

import (
	"fmt"
	"sort"
	"strings"

	"hydralite/internal/config"
)

// Role strategy names accepted by roles.strategy.
const (
	StrategyDominant = "dominant"
	StrategyRanked   = "ranked"
	StrategyMapping  = "mapping"
)

// Speech is the minimal view of an utterance a role strategy needs.
type Speech struct {
	Speaker string
	Text    string
}

// RoleAssigner maps diarized speaker labels to conversational roles.
type RoleAssigner interface {
	Assign(utterances []Speech) map[string]string
}

// NewRoleAssigner builds the strategy selected in cfg.
func NewRoleAssigner(cfg config.Roles) (RoleAssigner, error) {
	labels := cfg.Labels
	if len(labels) == 0 {
		labels = []string{"Doctor", "Patient"}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Strategy)) {
	case "", StrategyDominant:
		return Dominant{Labels: labels}, nil
	case StrategyRanked:
		return Ranked{Labels: labels}, nil
	case StrategyMapping:
		return Mapping{Table: cfg.Mapping, Fallback: Dominant{Labels: labels}}, nil
	default:
		return nil, fmt.Errorf("unknown role strategy %q", cfg.Strategy)
	}
}

type speakerTotal struct {
	speaker string
	chars   int
	first   int
}

// rankSpeakers orders speakers by total characters spoken, descending.
// Ties keep first-appearance order.
func rankSpeakers(utterances []Speech) []speakerTotal {
	index := make(map[string]int)
	var totals []speakerTotal
	for i, u := range utterances {
		pos, ok := index[u.Speaker]
		if !ok {
			pos = len(totals)
			index[u.Speaker] = pos
			totals = append(totals, speakerTotal{speaker: u.Speaker, first: i})
		}
		totals[pos].chars += len([]rune(u.Text))
	}
	sort.SliceStable(totals, func(i, j int) bool {
		return totals[i].chars > totals[j].chars
	})
	return totals
}

// Dominant gives the speaker with the most characters the first label and
// every other speaker the second.
type Dominant struct {
	Labels []string
}

func (d Dominant) Assign(utterances []Speech) map[string]string {
	roles := make(map[string]string)
	ranked := rankSpeakers(utterances)
	if len(ranked) == 0 {
		return roles
	}
	primary, secondary := labelAt(d.Labels, 0), labelAt(d.Labels, 1)
	for i, total := range ranked {
		if i == 0 {
			roles[total.speaker] = primary
			continue
		}
		roles[total.speaker] = secondary
	}
	return roles
}

// Ranked hands out labels in order of speaking volume; speakers beyond the
// label list share the last label.
type Ranked struct {
	Labels []string
}

func (r Ranked) Assign(utterances []Speech) map[string]string {
	roles := make(map[string]string)
	for i, total := range rankSpeakers(utterances) {
		roles[total.speaker] = labelAt(r.Labels, i)
	}
	return roles
}

// Mapping applies an explicit speaker table. Speakers missing from the table
// get the fallback strategy's answer.
type Mapping struct {
	Table    map[string]string
	Fallback RoleAssigner
}

func (m Mapping) Assign(utterances []Speech) map[string]string {
	var roles map[string]string
	if m.Fallback != nil {
		roles = m.Fallback.Assign(utterances)
	} else {
		roles = make(map[string]string)
	}
	for _, u := range utterances {
		if role, ok := m.Table[u.Speaker]; ok && strings.TrimSpace(role) != "" {
			roles[u.Speaker] = role
		}
	}
	return roles
}

func labelAt(labels []string, i int) string {
	if len(labels) == 0 {
		return "Speaker"
	}
	if i >= len(labels) {
		return labels[len(labels)-1]
	}
	return labels[i]
}
