package media

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

// EXIF orientation values.
const (
	OrientationNormal     = 1
	OrientationFlipH      = 2
	OrientationRotate180  = 3
	OrientationFlipV      = 4
	OrientationTranspose  = 5
	OrientationRotate270  = 6
	OrientationTransverse = 7
	OrientationRotate90   = 8
)

// getInt reads an integer tag, nil when absent or malformed
func getInt(exifData *exif.Exif, tagName exif.FieldName) *int {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return nil
	}
	val, err := tag.Int(0)
	if err != nil {
		return nil
	}
	return &val
}

// readOrientation returns the EXIF orientation of data. Missing EXIF or a
// missing tag yields OrientationNormal with a nil error; malformed EXIF is
// reported so the caller can fall back to a raw decode.
func readOrientation(data []byte) (orientation int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("exif parser panic: %v", r)
		}
	}()

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		if exif.IsCriticalError(err) {
			// no EXIF segment at all is the common case for PNG and stripped JPEG
			return OrientationNormal, nil
		}
		if x == nil {
			return OrientationNormal, nil
		}
	}
	if v := getInt(x, exif.Orientation); v != nil {
		if *v < OrientationNormal || *v > OrientationRotate90 {
			return OrientationNormal, fmt.Errorf("invalid orientation value %d", *v)
		}
		return *v, nil
	}
	return OrientationNormal, nil
}

// applyOrientation transforms img so that it displays upright.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case OrientationFlipH:
		return imaging.FlipH(img)
	case OrientationRotate180:
		return imaging.Rotate180(img)
	case OrientationFlipV:
		return imaging.FlipV(img)
	case OrientationTranspose:
		return imaging.Transpose(img)
	case OrientationRotate270:
		return imaging.Rotate270(img)
	case OrientationTransverse:
		return imaging.Transverse(img)
	case OrientationRotate90:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
