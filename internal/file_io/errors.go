package file_io

import "errors"

var ErrFileNotFound = errors.New("file not found")
