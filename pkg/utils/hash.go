package utils

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

const hashBufferSize = 256 * 1024

// HashFile computes SHA256 hash of a file
func HashFile(filepath string) (string, error) {
	return HashFileContext(context.Background(), filepath)
}

// HashFileContext computes the SHA256 hash of a file, checking ctx between
// buffer reads so a long hash over a slow mount can be abandoned.
func HashFileContext(ctx context.Context, filepath string) (string, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	buf := make([]byte, hashBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, readErr := file.Read(buf)
		if n > 0 {
			hash.Write(buf[:n])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", readErr
		}
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}
