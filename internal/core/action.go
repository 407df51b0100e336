package core

import (
	"fmt"
	"strings"
)

// Action is the recommended handling of an incoming email
type Action string

const (
	ActionSilentFYIOnly      Action = "silent-fyi-only"
	ActionSilentLargeList    Action = "silent-large-list"
	ActionSilentUnsubscribe  Action = "silent-unsubscribe"
	ActionSilentSpam         Action = "silent-spam"
	ActionSilentTodo         Action = "silent-todo"
	ActionReplySender        Action = "reply-sender"
	ActionReplyAll           Action = "reply-all"
	ActionForward            Action = "forward"
	ActionForwardWithComment Action = "forward-with-comment"
)

// Actions lists every known action
var Actions = []Action{
	ActionSilentFYIOnly,
	ActionSilentLargeList,
	ActionSilentUnsubscribe,
	ActionSilentSpam,
	ActionSilentTodo,
	ActionReplySender,
	ActionReplyAll,
	ActionForward,
	ActionForwardWithComment,
}

// ParseAction converts a model-provided string into an Action
func ParseAction(s string) (Action, error) {
	candidate := Action(strings.ToLower(strings.TrimSpace(s)))
	for _, a := range Actions {
		if a == candidate {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// IsSilent reports whether the action produces no reply body
func (a Action) IsSilent() (bool, error) {
	switch a {
	case ActionSilentFYIOnly, ActionSilentLargeList, ActionSilentUnsubscribe, ActionSilentSpam, ActionSilentTodo:
		return true, nil
	case ActionReplySender, ActionReplyAll, ActionForward, ActionForwardWithComment:
		return false, nil
	}
	return false, fmt.Errorf("unhandled action %q", string(a))
}

// RecipientMode is how recipients of a reply are resolved
type RecipientMode int

const (
	RecipientsNone RecipientMode = iota
	RecipientsSender
	RecipientsAll
	RecipientsForward
)

// Recipients returns the recipient mode for the action
func (a Action) Recipients() (RecipientMode, error) {
	switch a {
	case ActionSilentFYIOnly, ActionSilentLargeList, ActionSilentUnsubscribe, ActionSilentSpam, ActionSilentTodo:
		return RecipientsNone, nil
	case ActionReplySender:
		return RecipientsSender, nil
	case ActionReplyAll:
		return RecipientsAll, nil
	case ActionForward, ActionForwardWithComment:
		return RecipientsForward, nil
	}
	return RecipientsNone, fmt.Errorf("unhandled action %q", string(a))
}
