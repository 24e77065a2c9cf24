// Package trouble defines the closed set of reasons a fetch can fail
// for, and the error type used to carry them through the system.
package trouble

import (
	"errors"
	"fmt"
)

type (
	Reason int

	// Trouble is the error returned by the extraction and fetch layers
	// whenever an operation fails. The embedded error retains the raw
	// diagnostic (for logs) while the Reason selects the message
	// shown to the end user.
	Trouble struct {
		error
		reason Reason
	}
)

const (
	InvalidURL Reason = iota
	VideoUnavailable
	PrivateVideo
	AgeRestricted
	AccessDenied
	NotFound
	MetadataExtractionFailed
	FileNotCreated
	Unknown
)

var userMessages = map[Reason]string{
	InvalidURL:               "Invalid TikTok URL format",
	VideoUnavailable:         "Video is unavailable or has been removed",
	PrivateVideo:             "This is a private video and cannot be downloaded",
	AgeRestricted:            "Age-restricted video cannot be downloaded",
	AccessDenied:             "Access denied. The video may be region-restricted",
	NotFound:                 "Video not found. Please check the URL",
	MetadataExtractionFailed: "Could not extract video information",
	FileNotCreated:           "Video file was not created",
	Unknown:                  "Failed to download video. Please try again",
}

// New constructs a Trouble for the given reason. If err is nil, a
// generic error describing the reason is used instead.
func New(reason Reason, err error) Trouble {
	if err == nil {
		err = errors.New(reason.Message())
	}

	return Trouble{error: err, reason: reason}
}

// Newf is a convenience wrapper around New and fmt.Errorf.
func Newf(reason Reason, format string, args ...any) Trouble {
	return New(reason, fmt.Errorf(format, args...))
}

func (t Trouble) Reason() Reason { return t.reason }

// Message returns the user-facing message for this trouble. The
// underlying error text is never included.
func (t Trouble) Message() string { return t.reason.Message() }

func (t Trouble) Unwrap() error { return t.error }

func (t Trouble) Error() string {
	return fmt.Sprintf("%s: %s", t.reason, t.error.Error())
}

// ReasonOf extracts the Reason from any error chain containing a Trouble.
// Errors that carry no Trouble are considered Unknown.
func ReasonOf(err error) Reason {
	var t Trouble
	if errors.As(err, &t) {
		return t.reason
	}

	return Unknown
}

// From converts an arbitrary error in to a Trouble. An error which
// already carries a Trouble is returned as that Trouble, otherwise
// it's wrapped as Unknown. A nil error returns nil.
func From(err error) error {
	if err == nil {
		return nil
	}

	var t Trouble
	if errors.As(err, &t) {
		return t
	}

	return New(Unknown, err)
}

func (r Reason) Message() string {
	if msg, ok := userMessages[r]; ok {
		return msg
	}

	return userMessages[Unknown]
}

func (r Reason) String() string {
	switch r {
	case InvalidURL:
		return "INVALID_URL"
	case VideoUnavailable:
		return "VIDEO_UNAVAILABLE"
	case PrivateVideo:
		return "PRIVATE_VIDEO"
	case AgeRestricted:
		return "AGE_RESTRICTED"
	case AccessDenied:
		return "ACCESS_DENIED"
	case NotFound:
		return "NOT_FOUND"
	case MetadataExtractionFailed:
		return "METADATA_EXTRACTION_FAILED"
	case FileNotCreated:
		return "FILE_NOT_CREATED"
	case Unknown:
		return "UNKNOWN"
	default:
		return fmt.Sprintf("UNKNOWN[%d]", r)
	}
}
