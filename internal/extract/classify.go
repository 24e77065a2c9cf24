package extract

import (
	"context"
	"errors"
	"strings"

	"github.com/hbomb79/Tikfetch/internal/trouble"
)

// engineSignatures maps fragments of the engine's error output on to
// the trouble reason they indicate. Order matters: the first match wins.
var engineSignatures = []struct {
	fragment string
	reason   trouble.Reason
}{
	{"Video unavailable", trouble.VideoUnavailable},
	{"Private video", trouble.PrivateVideo},
	{"This video is private", trouble.PrivateVideo},
	{"Sign in to confirm your age", trouble.AgeRestricted},
	{"HTTP Error 403", trouble.AccessDenied},
	{"HTTP Error 404", trouble.NotFound},
}

// classify translates an engine failure in to a Trouble. The raw
// engine error is retained so that it can be logged.
func classify(err error, output string) trouble.Trouble {
	if errors.Is(err, context.DeadlineExceeded) {
		return trouble.Newf(trouble.Unknown, "extraction engine timed out: %w", err)
	}

	haystack := output
	if err != nil {
		haystack = output + "\n" + err.Error()
	}

	for _, sig := range engineSignatures {
		if strings.Contains(haystack, sig.fragment) {
			return trouble.New(sig.reason, engineError(err, output))
		}
	}

	return trouble.New(trouble.Unknown, engineError(err, output))
}

// engineError combines the process error with the last meaningful line
// of output emitted by the engine.
func engineError(err error, output string) error {
	line := lastErrorLine(output)
	switch {
	case err == nil && line == "":
		return errors.New("extraction engine failed without output")
	case err == nil:
		return errors.New(line)
	case line == "":
		return err
	default:
		return &EngineError{Err: err, Output: line}
	}
}

func lastErrorLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); strings.HasPrefix(l, "ERROR:") {
			return l
		}
	}

	return strings.TrimSpace(lines[len(lines)-1])
}

// EngineError is the raw failure reported by the extraction engine.
type EngineError struct {
	Err    error
	Output string
}

func (e *EngineError) Error() string { return e.Output + " (" + e.Err.Error() + ")" }

func (e *EngineError) Unwrap() error { return e.Err }
