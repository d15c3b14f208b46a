package deps

import "strings"

// AudioRequirements lists the binaries used by audio normalization. ffprobe
// is optional: it only backs the duration lookup for logs and metrics.
func AudioRequirements(ffmpegPath, ffprobePath string) []Requirement {
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     orDefault(ffmpegPath, "ffmpeg"),
			Description: "Converts uploads to mono 16 kHz WAV",
		},
		{
			Name:        "FFprobe",
			Command:     orDefault(ffprobePath, "ffprobe"),
			Description: "Reads audio durations",
			Optional:    true,
		},
	}
}

// MissingRequired returns the statuses of required binaries that were not found.
func MissingRequired(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}
	return missing
}

func orDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}
