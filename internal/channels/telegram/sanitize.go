package telegram

import (
	"fmt"
	"os"

	"github.com/disintegration/imaging"
)

// maxVisionImageDim caps the longer edge of an image sent to the agent's
// vision input; oversized photos (Telegram's "original" size can be several
// thousand pixels wide) waste tokens without improving recognition quality.
const maxVisionImageDim = 1568

// sanitizeImage decodes the image at path, strips EXIF/metadata by
// re-encoding it as a flat JPEG, and downscales it if it exceeds
// maxVisionImageDim on its longer edge. Returns the path to the sanitized
// copy (the original file is removed once the copy is written) or an error
// if the file isn't a decodable image.
func sanitizeImage(path string) (string, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	if w, h := bounds.Dx(), bounds.Dy(); w > maxVisionImageDim || h > maxVisionImageDim {
		img = imaging.Fit(img, maxVisionImageDim, maxVisionImageDim, imaging.Lanczos)
	}

	out := path + ".sanitized.jpg"
	if err := imaging.Save(img, out, imaging.JPEGQuality(85)); err != nil {
		return "", fmt.Errorf("encode sanitized image: %w", err)
	}

	// Best-effort: drop the original download now that the sanitized copy exists.
	_ = os.Remove(path)

	return out, nil
}
