package db

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by store implementations.
var (
	// ErrKeyNotFound signals a missing key.
	ErrKeyNotFound = errors.New("key not found")
	// ErrIndexExists signals a duplicate index.
	ErrIndexExists = errors.New("index already exists")
	// ErrIndexNotFound signals a missing index.
	ErrIndexNotFound = errors.New("index not found")
)

// Op identifies the failed store operation.
type Op string

// Store operations.
const (
	OpGet         Op = "get"
	OpSet         Op = "set"
	OpDel         Op = "del"
	OpScan        Op = "scan"
	OpHSet        Op = "hset"
	OpHGetAll     Op = "hgetall"
	OpSearch      Op = "search"
	OpCreateIndex Op = "create_index"
	OpDropIndex   Op = "drop_index"
	OpIndexInfo   Op = "index_info"
)

// Error wraps a backend error with the operation that failed.
type Error struct {
	Op  Op
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("db %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
