//go:build unix

package memmap

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mapFile maps size bytes of the file at path into memory, growing the file
// if needed. The mapping is shared, so guest writes reach the file.
func mapFile(path string, size uint64) ([]byte, func() error, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	if uint64(info.Size()) > size {
		file.Close()
		return nil, nil, fmt.Errorf("backing file is %d bytes, larger than the %d byte bank", info.Size(), size)
	}
	if uint64(info.Size()) < size {
		if err := file.Truncate(int64(size)); err != nil {
			file.Close()
			return nil, nil, err
		}
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, nil, err
	}

	unmap := func() error {
		merr := unix.Munmap(data)
		cerr := file.Close()
		if merr != nil {
			return merr
		}
		return cerr
	}
	return data, unmap, nil
}
