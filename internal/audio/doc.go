// Package audio normalizes uploaded recordings for transcription.
//
// Normalizer shells out to ffmpeg to produce mono 16-bit PCM WAV at 16 kHz
// (configurable), then asks ffprobe for the resulting duration, which feeds
// logs and the audio duration histogram. Command execution goes through a
// Runner so tests can substitute a fake.
package audio
