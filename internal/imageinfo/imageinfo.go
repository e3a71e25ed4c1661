// Package imageinfo reads image dimensions without decoding pixel data.
package imageinfo

import (
	"bufio"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strconv"
)

// UnknownTag replaces the resolution in output names when dimensions cannot be read.
const UnknownTag = "unknown"

// Dimensions returns the width and height stored in the image header at path.
func Dimensions(path string) (int, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer file.Close()

	cfg, _, err := image.DecodeConfig(bufio.NewReader(file))
	if err != nil {
		return 0, 0, fmt.Errorf("decode image header %s: %w", path, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, fmt.Errorf("decode image header %s: invalid dimensions %dx%d", path, cfg.Width, cfg.Height)
	}
	return cfg.Width, cfg.Height, nil
}

// ResolutionTag returns "<width>x<height>" for path, or UnknownTag when the
// header cannot be decoded.
func ResolutionTag(path string) string {
	w, h, err := Dimensions(path)
	if err != nil {
		return UnknownTag
	}
	return strconv.Itoa(w) + "x" + strconv.Itoa(h)
}
