package pipeline

import (
	"path/filepath"

	"golang.org/x/sys/unix"

	"discburn/internal/burnerr"
)

// fatFileLimit is the largest file a FAT filesystem can hold.
const fatFileLimit = int64(1)<<31 - 1

// checkOutputLocation verifies that an image of size bytes can be written to
// path: write permission on its directory, filesystem free space, the FAT
// file size limit and the process file size limit.
func checkOutputLocation(path string, size int64) error {
	dir := filepath.Dir(path)
	if err := unix.Access(dir, unix.W_OK); err != nil {
		return burnerr.Wrap(burnerr.KindPermission, "output", "directory "+dir+" is not writable", err)
	}
	if size <= 0 {
		return nil
	}

	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return burnerr.Wrap(burnerr.KindTmpDirectory, "output", "inspect filesystem of "+dir, err)
	}
	if int64(st.Type) == unix.MSDOS_SUPER_MAGIC && size > fatFileLimit {
		return burnerr.Newf(burnerr.KindDiskSpace, "output",
			"the filesystem of %s cannot hold files larger than 2 GiB", dir)
	}
	free := int64(st.Bavail) * int64(st.Bsize)
	if size > free {
		return burnerr.Newf(burnerr.KindDiskSpace, "output",
			"%s has %d bytes free, %d needed", dir, free, size)
	}

	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_FSIZE, &limit); err == nil && limit.Cur < uint64(size) {
		return burnerr.Newf(burnerr.KindDiskSpace, "output",
			"file size limit of %d bytes is below the %d bytes needed", limit.Cur, size)
	}
	return nil
}
