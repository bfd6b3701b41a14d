package object

import "errors"

var (
	ErrUnsupportedGroupType = errors.New("object: unsupported group type")
	ErrUnsupportedDelta     = errors.New("object: unsupported object id delta")
	ErrUnsupportedStatus    = errors.New("object: unsupported object status")
	ErrConflictingFlags     = errors.New("object: hasSubgroup and hasSubgroupObject are mutually exclusive")
)
