package api

import "errors"

// ErrInvalidNodeID is returned before any request is sent when a node id
// cannot be used as a single path segment.
var ErrInvalidNodeID = errors.New("invalid node id")
