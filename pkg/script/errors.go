package script

import (
	"errors"

	"github.com/jwebster45206/questscript/pkg/values"
)

var (
	// ErrParse wraps every failure to turn a document into a node.
	ErrParse = errors.New("parse error")

	// ErrNotSupported is returned when neither native dispatch nor any
	// registered resolver claims a node. It points at a content or add-on
	// mismatch and must not be swallowed.
	ErrNotSupported = errors.New("not supported")

	// ErrNotFound is returned by accessors for names they do not know.
	ErrNotFound = errors.New("not found")

	// ErrUnsupportedOperator is returned when an operator has no meaning for
	// the values being compared.
	ErrUnsupportedOperator = errors.New("unsupported operator")

	// ErrNoScheduler is returned when a deferred microscript runs without a
	// scheduler in its Env.
	ErrNoScheduler = errors.New("no scheduler configured")

	// ErrMissingStore is returned when a node needs a store the Env lacks.
	ErrMissingStore = errors.New("missing store")

	// ErrTypeMismatch is returned for values with no common representation.
	ErrTypeMismatch = values.ErrTypeMismatch
)
