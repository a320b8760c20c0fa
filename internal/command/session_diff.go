package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/njfio/tau-agent/internal/session"
)

// SessionDiff is the result of comparing two lineages: the entries
// they share as a common prefix, then each side's divergent tail.
type SessionDiff struct {
	Left      uint64
	Right     uint64
	Shared    []session.Entry
	LeftOnly  []session.Entry
	RightOnly []session.Entry
}

// parseSessionDiffArgs parses "[<left> <right>]". Both heads must be
// given together or both omitted; a single argument is an error.
func parseSessionDiffArgs(args string) (left, right *uint64, err error) {
	fields := strings.Fields(args)
	switch len(fields) {
	case 0:
		return nil, nil, nil
	case 2:
		l, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("/session-diff: invalid left entry id %q", fields[0])
		}
		r, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("/session-diff: invalid right entry id %q", fields[1])
		}
		return &l, &r, nil
	default:
		return nil, nil, fmt.Errorf("/session-diff: expected either no arguments or \"<left> <right>\"")
	}
}

func sessionDiffHandler(_ context.Context, rc *Context, args string) (Result, error) {
	if rc.Session == nil {
		return Result{}, fmt.Errorf("/session-diff: no session attached")
	}
	leftArg, rightArg, err := parseSessionDiffArgs(args)
	if err != nil {
		return Result{}, err
	}

	left := rc.ActiveHead
	if leftArg != nil {
		left = *leftArg
	}

	right := left
	if rightArg != nil {
		right = *rightArg
	} else {
		tips := rc.Session.BranchTips()
		if len(tips) == 0 {
			return Result{}, fmt.Errorf("/session-diff: session has no branch tips")
		}
		// BranchTips is sorted ascending; the highest id is the most
		// recently appended leaf.
		right = tips[len(tips)-1]
	}

	diff, err := diffLineages(rc.Session, left, right)
	if err != nil {
		return Result{}, fmt.Errorf("/session-diff: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Comparing #%d..#%d: %d shared entries\n", diff.Left, diff.Right, len(diff.Shared))
	fmt.Fprintf(&b, "  left-only (%d):\n", len(diff.LeftOnly))
	for _, e := range diff.LeftOnly {
		fmt.Fprintf(&b, "    #%d [%s] %s\n", e.ID, e.Message.Role, snippet(e.Message.TextContent(), 0, 0))
	}
	fmt.Fprintf(&b, "  right-only (%d):\n", len(diff.RightOnly))
	for _, e := range diff.RightOnly {
		fmt.Fprintf(&b, "    #%d [%s] %s\n", e.ID, e.Message.Role, snippet(e.Message.TextContent(), 0, 0))
	}
	return Result{Text: strings.TrimRight(b.String(), "\n"), Action: Continue}, nil
}

// diffLineages computes the longest-common-prefix diff between the
// root-to-head chains of left and right. Because every entry's parent
// chain is immutable once written, two lineages sharing an ancestor
// share it at the same position in both chains.
func diffLineages(store *session.Store, left, right uint64) (SessionDiff, error) {
	leftEntries, err := store.LineageEntries(left)
	if err != nil {
		return SessionDiff{}, err
	}
	rightEntries, err := store.LineageEntries(right)
	if err != nil {
		return SessionDiff{}, err
	}

	shared := 0
	for shared < len(leftEntries) && shared < len(rightEntries) && leftEntries[shared].ID == rightEntries[shared].ID {
		shared++
	}

	return SessionDiff{
		Left:      left,
		Right:     right,
		Shared:    leftEntries[:shared],
		LeftOnly:  leftEntries[shared:],
		RightOnly: rightEntries[shared:],
	}, nil
}
