//go:build !unix

package wire

import (
	"errors"
	"os"
)

// ErrOwnershipUnsupported indicates the platform cannot pass descriptors.
var ErrOwnershipUnsupported = errors.New("share ownership: descriptor passing unsupported on this platform")

func rightsFor(*os.File) ([]byte, error) {
	return nil, ErrOwnershipUnsupported
}
