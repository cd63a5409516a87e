package charts

import (
	"regexp"
	"strings"
)

// Class describes what a raw payload looks like.
type Class string

const (
	ClassDataURI Class = "data-uri" // already a data:image URI
	ClassJPEG    Class = "jpeg"     // base64 with the JPEG signature
	ClassPNG     Class = "png"      // base64 with the PNG signature
	ClassBase64  Class = "base64"   // other strict base64
	ClassUnknown Class = "unknown"
)

const (
	dataURIPrefix = "data:image"
	pngEnvelope   = "data:image/png;base64,"
	jpegEnvelope  = "data:image/jpeg;base64,"

	jpegSignature = "/9j/"
	pngSignature  = "iVBOR"
)

var base64Alphabet = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)

// Classify inspects payload without modifying it.
func Classify(payload string) Class {
	switch {
	case strings.HasPrefix(payload, dataURIPrefix):
		return ClassDataURI
	case strings.HasPrefix(payload, jpegSignature):
		return ClassJPEG
	case strings.HasPrefix(payload, pngSignature):
		return ClassPNG
	case base64Alphabet.MatchString(payload):
		return ClassBase64
	}
	return ClassUnknown
}

// Normalize turns a raw payload into a displayable data URI. It never fails:
// anything not recognised gets the PNG envelope.
func Normalize(payload string) string {
	switch Classify(payload) {
	case ClassDataURI:
		return payload
	case ClassJPEG:
		return jpegEnvelope + payload
	default:
		return pngEnvelope + payload
	}
}
