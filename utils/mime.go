package utils

const (
	// MimeTypeJPEG is the content type of query images.
	MimeTypeJPEG = "image/jpeg"

	// MimeTypeJSON is the content type of localization responses.
	MimeTypeJSON = "application/json"
)
