package audit

import "errors"

var ErrBrokenChain = errors.New("audit chain broken")
