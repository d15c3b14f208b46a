// Package assemblyai is a minimal REST client for AssemblyAI speaker-labelled
// transcription: upload the audio, submit a transcript job with diarization
// and language detection, then poll until it completes.
package assemblyai
