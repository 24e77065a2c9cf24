package store

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Key identifies a single piece of source content and is used to
// derive the name of the file stored on disk. Keys take the form
// '<id>.<ext>' and are guaranteed to be safe filename fragments.
type Key string

var (
	idPattern  = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	extPattern = regexp.MustCompile(`^[A-Za-z0-9]{1,10}$`)

	ErrUnsafeKey = errors.New("media key is not a safe filename fragment")
)

// NewKey constructs a Key from the engine-assigned ID and file extension.
// An error is returned if either component could escape the store
// directory or otherwise produce an unusable filename.
func NewKey(id string, ext string) (Key, error) {
	if id == "" || ext == "" {
		return "", fmt.Errorf("%w: id (%q) and ext (%q) must both be present", ErrUnsafeKey, id, ext)
	}
	if !idPattern.MatchString(id) || strings.Contains(id, "..") || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("%w: illegal id %q", ErrUnsafeKey, id)
	}
	if !extPattern.MatchString(ext) {
		return "", fmt.Errorf("%w: illegal extension %q", ErrUnsafeKey, ext)
	}

	return Key(id + "." + ext), nil
}

// parseKey recovers the Key from a stored filename, returning false if
// the name does not carry the prefix or cannot be a valid key.
func parseKey(prefix string, filename string) (Key, bool) {
	rest, ok := strings.CutPrefix(filename, prefix)
	if !ok {
		return "", false
	}

	dot := strings.LastIndexByte(rest, '.')
	if dot <= 0 {
		return "", false
	}

	key, err := NewKey(rest[:dot], rest[dot+1:])
	if err != nil {
		return "", false
	}

	return key, true
}

// ID returns the engine-assigned id portion of the key.
func (k Key) ID() string {
	if dot := strings.LastIndexByte(string(k), '.'); dot >= 0 {
		return string(k)[:dot]
	}
	return string(k)
}

// Ext returns the file extension portion of the key (without the dot).
func (k Key) Ext() string {
	if dot := strings.LastIndexByte(string(k), '.'); dot >= 0 {
		return string(k)[dot+1:]
	}
	return ""
}

func (k Key) String() string { return string(k) }
