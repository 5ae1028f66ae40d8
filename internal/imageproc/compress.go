// SPDX-FileCopyrightText: Stepan Nazar
//
// SPDX-License-Identifier: MIT

package imageproc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
)

// Compress returns the file unchanged when it is at or under the size limit.
// Oversized files are decoded, downscaled to the maximum dimension and
// re-encoded as JPEG with stepwise decreasing quality until they fit. The
// original file name is preserved.
func (p *Processor) Compress(file File) (File, error) {
	if int64(len(file.Data)) <= p.sizeLimit {
		return file, nil
	}

	decoded, format, err := image.Decode(bytes.NewReader(file.Data))
	if err != nil {
		return File{}, &ProcessingError{Name: file.Name, Err: fmt.Errorf("failed to decode image: %w", err)}
	}
	scaled := p.downscale(decoded)

	for quality := initialJPEGQuality; quality >= minJPEGQuality; quality -= jpegQualityStep {
		var buffer bytes.Buffer
		if err = jpeg.Encode(&buffer, scaled, &jpeg.Options{Quality: quality}); err != nil {
			return File{}, &ProcessingError{Name: file.Name, Err: fmt.Errorf("failed to encode image: %w", err)}
		}
		if int64(buffer.Len()) <= p.sizeLimit {
			p.logger.Debug("compressed image", "name", file.Name, "format", format,
				"quality", quality, "bytes", buffer.Len())
			return File{Name: file.Name, MIME: "image/jpeg", Data: buffer.Bytes()}, nil
		}
	}
	return File{}, &ProcessingError{Name: file.Name,
		Err: errors.New("image cannot be reduced below the size limit")}
}

// downscale shrinks the image so that its longest edge does not exceed the
// configured maximum dimension. Smaller images are returned as-is.
func (p *Processor) downscale(src image.Image) image.Image {
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	longest := max(width, height)
	if longest <= p.maxDimension {
		return src
	}

	ratio := float64(p.maxDimension) / float64(longest)
	scaledWidth := max(int(float64(width)*ratio), 1)
	scaledHeight := max(int(float64(height)*ratio), 1)
	dst := image.NewRGBA(image.Rect(0, 0, scaledWidth, scaledHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}
