package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"hydralite/internal/fileutil"
	"hydralite/internal/services/assemblyai"
)

// Utterance is a role-attributed span of the conversation.
type Utterance struct {
	Speaker string `json:"speaker"`
	Role    string `json:"role"`
	Text    string `json:"text"`
	StartMS int64  `json:"start_ms"`
	EndMS   int64  `json:"end_ms"`
}

// Record is the persisted transcript of one job.
type Record struct {
	AudioFile  string      `json:"audio_file"`
	Language   string      `json:"language"`
	FullText   string      `json:"full_text"`
	Utterances []Utterance `json:"utterances"`
}

// Build attributes roles to the provider's utterances and assembles the
// full text as one "Role: text" line per utterance. When the provider
// returned no diarization the whole text becomes a single utterance.
func Build(audioFile, lang string, raw *assemblyai.Transcript, assigner RoleAssigner) Record {
	record := Record{AudioFile: audioFile, Language: lang}
	if raw == nil {
		return record
	}
	source := raw.Utterances
	if len(source) == 0 && strings.TrimSpace(raw.Text) != "" {
		source = []assemblyai.Utterance{{Speaker: "A", Text: raw.Text}}
	}
	speech := make([]Speech, 0, len(source))
	for _, u := range source {
		speech = append(speech, Speech{Speaker: u.Speaker, Text: u.Text})
	}
	roles := assigner.Assign(speech)

	lines := make([]string, 0, len(source))
	record.Utterances = make([]Utterance, 0, len(source))
	for _, u := range source {
		role := roles[u.Speaker]
		if role == "" {
			role = "Speaker " + u.Speaker
		}
		record.Utterances = append(record.Utterances, Utterance{
			Speaker: u.Speaker,
			Role:    role,
			Text:    u.Text,
			StartMS: u.Start,
			EndMS:   u.End,
		})
		lines = append(lines, role+": "+u.Text)
	}
	record.FullText = strings.Join(lines, "\n")
	return record
}

// Path returns transcripts/<base>.json under dir.
func Path(dir, base string) string {
	return filepath.Join(dir, base+".json")
}

// Save writes the record atomically and returns its path.
func Save(dir, base string, record Record) (string, error) {
	path := Path(dir, base)
	if err := fileutil.WriteJSONAtomic(path, record); err != nil {
		return "", fmt.Errorf("save transcript: %w", err)
	}
	return path, nil
}

// Load reads a saved transcript.
func Load(path string) (Record, error) {
	var record Record
	data, err := os.ReadFile(path)
	if err != nil {
		return record, fmt.Errorf("read transcript: %w", err)
	}
	if err := json.Unmarshal(data, &record); err != nil {
		return record, fmt.Errorf("decode transcript: %w", err)
	}
	return record, nil
}
