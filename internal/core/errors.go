package core

import "errors"

// Error taxonomy for the conversion pipeline. Extraction and segmentation
// errors are fatal to the whole job; synthesis and concatenation errors are
// fatal only to the chapter they occur in.
var (
	// ErrUnsupportedFormat indicates the source format is unknown or cannot be handled.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrNoReadableText indicates extraction produced no text at all.
	ErrNoReadableText = errors.New("no readable text")
	// ErrNoChapters indicates segmentation produced zero eligible chapters.
	ErrNoChapters = errors.New("no eligible chapters")
	// ErrInvalidChapter indicates a chapter violated a construction invariant.
	ErrInvalidChapter = errors.New("invalid chapter")
	// ErrEmptyAudio indicates the synthesis backend returned no audio data.
	ErrEmptyAudio = errors.New("synthesis returned empty audio")
	// ErrAudioTooSmall indicates the synthesized audio is implausibly small.
	ErrAudioTooSmall = errors.New("synthesized audio below minimum size")
	// ErrNoVoices indicates the voice catalog is empty.
	ErrNoVoices = errors.New("no voices available")
	// ErrParamsMismatch indicates audio segments disagree on sample parameters.
	ErrParamsMismatch = errors.New("audio parameter mismatch between segments")
)

// FatalToJob reports whether err aborts the whole job rather than a single
// chapter.
func FatalToJob(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrNoReadableText) ||
		errors.Is(err, ErrNoChapters)
}
