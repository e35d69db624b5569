// Package phash computes perceptual fingerprints of image bytes and
// compares them by Hamming distance. The hash is perceptual, not
// cryptographic: re-compressions, filters and minor crops of the same
// visual land within a small distance of each other. Callers must treat
// the hash as opaque; the only defined operation between two hashes is
// Distance.
package phash

import (
	"bytes"
	"errors"
	"fmt"
	"math/bits"
	"strconv"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"
)

// DefaultThreshold is the Hamming-distance cutoff for calling two
// images duplicates. Values 0-10 are valid.
const DefaultThreshold = 5

// ErrDecode is returned when the bytes are not a readable image.
var ErrDecode = errors.New("phash: image bytes not decodable")

// Fingerprint decodes the image and returns its 64-bit perception hash as
// 16 lowercase hex characters.
func Fingerprint(data []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return "", fmt.Errorf("compute perception hash: %w", err)
	}
	return fmt.Sprintf("%016x", hash.GetHash()), nil
}

// Distance returns the bitwise Hamming distance between two fingerprints,
// in the range 0..64.
func Distance(a, b string) (int, error) {
	ua, err := strconv.ParseUint(a, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse hash %q: %w", a, err)
	}
	ub, err := strconv.ParseUint(b, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse hash %q: %w", b, err)
	}
	return bits.OnesCount64(ua ^ ub), nil
}

// IsDuplicate reports whether the two fingerprints are within threshold of
// each other. Unparsable hashes are never duplicates.
func IsDuplicate(a, b string, threshold int) bool {
	d, err := Distance(a, b)
	if err != nil {
		return false
	}
	return d <= threshold
}
