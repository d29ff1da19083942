package core

import "context"

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// SpeechSynthesizer is the minimal contract a synthesis backend must satisfy.
// Synthesize returns raw WAV audio for one bounded text chunk.
type SpeechSynthesizer interface {
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
	Synthesize(ctx context.Context, text, voiceID, language string) ([]byte, error)
}

// ProgressSink receives progress updates during a conversion. Implementations
// must be safe for sequential calls from a single worker goroutine.
type ProgressSink interface {
	Update(update ProgressUpdate)
}

// ProgressFunc adapts a function to the ProgressSink interface.
type ProgressFunc func(update ProgressUpdate)

// Update implements ProgressSink.
func (f ProgressFunc) Update(update ProgressUpdate) {
	f(update)
}
