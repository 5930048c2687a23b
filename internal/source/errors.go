package source

import "errors"

// Adapter error taxonomy. Feed and search failures are per-source and must
// not abort sibling sources in the same run; page failures are terminal for
// that single request.
var (
	ErrSourceUnreachable = errors.New("source unreachable")
	ErrSourceMalformed   = errors.New("source malformed")
	ErrPageUnreachable   = errors.New("page unreachable")
	ErrPageMalformed     = errors.New("page malformed")
)
