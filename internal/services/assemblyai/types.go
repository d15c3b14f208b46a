package assemblyai

// Transcript status values reported by the API.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// Utterance is one diarized span. Start and End are milliseconds.
type Utterance struct {
	Speaker    string  `json:"speaker"`
	Text       string  `json:"text"`
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Transcript is the subset of the transcript resource the pipeline consumes.
type Transcript struct {
	ID           string      `json:"id"`
	Status       string      `json:"status"`
	Text         string      `json:"text"`
	LanguageCode string      `json:"language_code"`
	Error        string      `json:"error"`
	Utterances   []Utterance `json:"utterances"`
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptRequest struct {
	AudioURL          string `json:"audio_url"`
	SpeakerLabels     bool   `json:"speaker_labels"`
	SpeakersExpected  int    `json:"speakers_expected,omitempty"`
	LanguageDetection bool   `json:"language_detection"`
	Punctuate         bool   `json:"punctuate"`
	FormatText        bool   `json:"format_text"`
	Disfluencies      bool   `json:"disfluencies"`
}

type apiError struct {
	Error string `json:"error"`
}
