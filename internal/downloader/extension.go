package downloader

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// DefaultExtension is used when no extension can be inferred from the response.
const DefaultExtension = "txt"

// ErrNoExtension is returned when the Content-Type header does not carry a usable subtype.
var ErrNoExtension = errors.New("no extension in content-type")

// Extension infers a file extension from the subtype of the Content-Type header,
// e.g. "image/jpeg" gives "jpeg". Parameters such as "; charset=utf-8" are dropped.
func Extension(header http.Header) (string, error) {
	values := header.Values("Content-Type")
	if len(values) == 0 {
		return "", fmt.Errorf("%w: header missing", ErrNoExtension)
	}

	ct := values[0]
	if !utf8.ValidString(ct) {
		return "", fmt.Errorf("%w: header is not valid utf-8", ErrNoExtension)
	}

	mediaType, _, _ := strings.Cut(ct, ";")

	i := strings.LastIndex(mediaType, "/")
	if i < 0 {
		return "", fmt.Errorf("%w: %q has no subtype", ErrNoExtension, ct)
	}

	subtype := strings.TrimSpace(mediaType[i+1:])
	if subtype == "" {
		return "", fmt.Errorf("%w: %q has an empty subtype", ErrNoExtension, ct)
	}

	return subtype, nil
}

// ExtensionOrDefault is Extension falling back to DefaultExtension on any failure.
func ExtensionOrDefault(header http.Header) string {
	ext, err := Extension(header)
	if err != nil {
		return DefaultExtension
	}

	return ext
}
