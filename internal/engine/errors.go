package engine

import "errors"

// ErrNoVoice is wrapped in a [SynthesisError] when [VoiceStrict] is in effect
// and neither the character nor the deployment supplies a voice.
var ErrNoVoice = errors.New("engine: no voice configured")

// TranscriptionError reports a failed speech-to-text stage: the clip could
// not be opened, the upload failed, or the service rejected it.
type TranscriptionError struct{ Err error }

func (e *TranscriptionError) Error() string { return "transcription failed: " + e.Err.Error() }
func (e *TranscriptionError) Unwrap() error { return e.Err }

// GenerationError reports a failed chat-completion call.
type GenerationError struct{ Err error }

func (e *GenerationError) Error() string { return "generation failed: " + e.Err.Error() }
func (e *GenerationError) Unwrap() error { return e.Err }

// SynthesisError reports a failed text-to-speech stage, including a failure
// to publish the resulting audio.
type SynthesisError struct{ Err error }

func (e *SynthesisError) Error() string { return "synthesis failed: " + e.Err.Error() }
func (e *SynthesisError) Unwrap() error { return e.Err }

// RecordingError reports a push-to-talk state violation or an unusable
// upload. It is raised by the session layer, never by the pipeline.
type RecordingError struct{ Err error }

func (e *RecordingError) Error() string { return "recording failed: " + e.Err.Error() }
func (e *RecordingError) Unwrap() error { return e.Err }

// IsTranscription reports whether err contains a [TranscriptionError].
func IsTranscription(err error) bool {
	var e *TranscriptionError
	return errors.As(err, &e)
}

// IsGeneration reports whether err contains a [GenerationError].
func IsGeneration(err error) bool {
	var e *GenerationError
	return errors.As(err, &e)
}

// IsSynthesis reports whether err contains a [SynthesisError].
func IsSynthesis(err error) bool {
	var e *SynthesisError
	return errors.As(err, &e)
}

// IsRecording reports whether err contains a [RecordingError].
func IsRecording(err error) bool {
	var e *RecordingError
	return errors.As(err, &e)
}

// Kind names the stage an error came from: "transcription", "generation",
// "synthesis", "recording", or "unknown".
func Kind(err error) string {
	switch {
	case IsTranscription(err):
		return "transcription"
	case IsGeneration(err):
		return "generation"
	case IsSynthesis(err):
		return "synthesis"
	case IsRecording(err):
		return "recording"
	}
	return "unknown"
}
