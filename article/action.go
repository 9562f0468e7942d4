package article

import (
	"fmt"
	"strings"
)

// Action is a control action a user can invoke on a paginated article. The
// kind is explicit; callers switch on it instead of inspecting handlers.
type Action int

const (
	// MergeInPlace appends every other page into the current document.
	MergeInPlace Action = iota + 1
	// MergeToDocument renders a standalone document.
	MergeToDocument
	// MergePublish submits the merged article to the save API.
	MergePublish
	// OpenSettings manages the stored API token.
	OpenSettings
)

var actionNames = map[Action]string{
	MergeInPlace:    "inplace",
	MergeToDocument: "document",
	MergePublish:    "publish",
	OpenSettings:    "settings",
}

// String returns the action's name as accepted by ParseAction.
func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// IsMerge reports whether the action runs the merge pipeline.
func (a Action) IsMerge() bool {
	return a == MergeInPlace || a == MergeToDocument || a == MergePublish
}

// ParseAction returns the action with the given name. Matching is
// case-insensitive.
func ParseAction(s string) (Action, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for action, n := range actionNames {
		if n == name {
			return action, nil
		}
	}
	return 0, fmt.Errorf("unknown action %q (expected inplace, document, publish or settings)", s)
}
