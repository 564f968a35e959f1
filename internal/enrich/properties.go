package enrich

import (
	"bytes"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// maxPropertyLen drops binary blobs that EXIF stores as tags
const maxPropertyLen = 128

// skippedFields never carry useful descriptive text
var skippedFields = map[exif.FieldName]bool{
	"MakerNote":                        true,
	"UserComment":                      true,
	"ThumbJPEGInterchangeFormat":       true,
	"ThumbJPEGInterchangeFormatLength": true,
}

type propertyWalker map[string]string

func (p propertyWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	if skippedFields[name] {
		return nil
	}
	value := strings.Trim(tag.String(), "\"")
	if value == "" || len(value) > maxPropertyLen {
		return nil
	}
	p[string(name)] = value
	return nil
}

// Properties extracts the EXIF fields of an image as strings. Images without
// EXIF data yield an empty map and no error.
func Properties(data []byte) (map[string]string, error) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		if exif.IsCriticalError(err) {
			return map[string]string{}, nil
		}
		// Partially decoded; keep whatever fields were read.
		if x == nil {
			return map[string]string{}, nil
		}
	}

	props := propertyWalker{}
	if err := x.Walk(props); err != nil {
		return nil, err
	}
	return props, nil
}
