//go:build windows

package ops

import (
	"os"

	"github.com/hpungsan/ccpro/internal/errors"
)

// openFileNoFollow opens an export file. Windows has no O_NOFOLLOW; ValidatePath
// rejects symlinks before this is called.
func openFileNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(path, flag, perm)
}

// openFileNoFollowRead opens an import file. See openFileNoFollow.
func openFileNoFollowRead(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFound(path)
		}
		return nil, err
	}
	return f, nil
}
