// media/types.go
package media

import "errors"

type AssetType string

// AssetTypeSelfie is the only asset written by the service; event photos are
// registered in place.
const AssetTypeSelfie AssetType = "selfie"

var (
	// ErrImageUnavailable means the source could not be fetched or does not exist.
	ErrImageUnavailable = errors.New("image unavailable")
	// ErrImageDecode means the bytes could not be decoded as an image.
	ErrImageDecode = errors.New("image decode failed")
)

// DefaultMaxDimension bounds the longer side of a normalized image.
const DefaultMaxDimension = 1000
