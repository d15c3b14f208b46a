// Package transcript turns diarized provider output into the persisted
// transcript record.
//
// Speaker labels from the transcription provider carry no meaning on their
// own, so a RoleAssigner decides which speaker is the doctor and which is the
// patient. The default strategy treats whoever spoke the most characters as
// the doctor.
package transcript
