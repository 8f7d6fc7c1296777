//go:build windows

package ops

import (
	"os"

	"github.com/hpungsan/colorbook/internal/errors"
)

// openFileNoFollow opens path. Windows has no O_NOFOLLOW; ResolvePath has
// already rejected symlinks.
func openFileNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound(path)
		}
		return nil, err
	}
	return f, nil
}
