package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the circulation core can surface so the
// transport layer maps it to a status code in one place instead of matching
// message strings.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNotFound
	KindConflict
	KindLimitExceeded
	KindValidation
	KindState
	KindExternal
)

// ConflictCode narrows KindConflict failures for callers that branch on them
// (e.g. join the queue after NoCopyAvailable).
type ConflictCode string

const (
	ConflictNoCopyAvailable  ConflictCode = "NO_COPY_AVAILABLE"
	ConflictAlreadyIssued    ConflictCode = "ALREADY_ISSUED"
	ConflictAlreadyQueued    ConflictCode = "ALREADY_QUEUED"
	ConflictAlreadyProcessed ConflictCode = "ALREADY_PROCESSED"
)

// Error is the single error type crossing the service boundary.
type Error struct {
	Kind  ErrorKind
	Code  ConflictCode // set when Kind == KindConflict
	Limit int          // set when Kind == KindLimitExceeded
	msg   string
}

func (e *Error) Error() string {
	return e.msg
}

func notFoundErr(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, msg: fmt.Sprintf(format, args...)}
}

func conflictErr(code ConflictCode, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Code: code, msg: fmt.Sprintf(format, args...)}
}

func limitErr(limit int, format string, args ...interface{}) *Error {
	return &Error{Kind: KindLimitExceeded, Limit: limit, msg: fmt.Sprintf(format, args...)}
}

func validationErr(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, msg: fmt.Sprintf(format, args...)}
}

func stateErr(format string, args ...interface{}) *Error {
	return &Error{Kind: KindState, msg: fmt.Sprintf(format, args...)}
}

// Kind extracts the classification of err, or KindUnknown for errors that did
// not originate in this package.
func Kind(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// Code extracts the conflict code of err, if any.
func Code(err error) ConflictCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// Limit extracts the violated limit of err, or 0.
func Limit(err error) int {
	var se *Error
	if errors.As(err, &se) {
		return se.Limit
	}
	return 0
}
