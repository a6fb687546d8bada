package repo

import "errors"

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrBriefClaimed is returned when a brief already has an active run.
// It is a caller-visible rejection, not a run failure: no workflow run row
// is created when the claim is refused.
var ErrBriefClaimed = errors.New("brief already claimed by an active run")
