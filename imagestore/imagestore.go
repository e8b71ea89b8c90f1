/*
Package imagestore persists profile photos and check-in evidence.

NORMALIZATION:
  Every image is decoded, downscaled to at most MaxWidth pixels wide (aspect
  ratio kept) and re-encoded as JPEG before it is written. An upload that
  cannot be decoded is a ValidationError.

OBJECT NAMES:
  <kind>/<employeeId>/<uuid>.jpg, e.g. checkin/E1/6f1c....jpg

BACKENDS:
  Local: files under a directory, served by the HTTP server
  GCS:   objects in a Google Cloud Storage bucket
*/
package imagestore

import (
	"bytes"
	"fmt"
	"path"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/warp/attendance-engine/attendance"
)

// MaxWidth bounds stored image width.
const MaxWidth = 1024

const contentType = "image/jpeg"

// Normalize decodes data and returns it as a JPEG no wider than maxWidth.
func Normalize(data []byte, maxWidth int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &attendance.ValidationError{Field: "file", Reason: "not a decodable image"}
	}
	if maxWidth > 0 && img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// ObjectName returns a fresh object name for an image.
func ObjectName(employeeID string, kind attendance.ImageKind) string {
	return path.Join(string(kind), employeeID, uuid.NewString()+".jpg")
}
