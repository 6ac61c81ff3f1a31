//go:build !unix

package memmap

import "fmt"

func mapFile(path string, size uint64) ([]byte, func() error, error) {
	return nil, nil, fmt.Errorf("file-backed flash is not supported on this platform")
}
