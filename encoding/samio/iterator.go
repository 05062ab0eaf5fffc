package samio

import (
	"github.com/grailbio/samcore/encoding/sam"
)

// Iterator iterates over sam.Records. Thread compatible.
type Iterator interface {
	// Scan returns where there are any records remaining in the iterator,
	// and if so, advances the iterator to the next record. If an error
	// occurs, Scan() returns false and the error can be retrieved by
	// calling Err().
	Scan() bool

	// Record returns the current record in the iterator. This must be
	// called only after a call to Scan() returns true. Each call to Scan
	// produces a new record; the caller may keep it.
	Record() *sam.Record

	// Err returns the error encountered during iteration, or nil if no
	// error occurred.
	Err() error

	// Close must be called exactly once. It releases the reader for the
	// next iterator and returns the value of Err().
	Close() error
}

type errorIterator struct {
	err error
}

func (i *errorIterator) Scan() bool          { return false }
func (i *errorIterator) Record() *sam.Record { panic("shall not be called") }
func (i *errorIterator) Err() error          { return i.err }
func (i *errorIterator) Close() error        { return i.err }

// NewErrorIterator creates an Iterator that yields no record and returns "err"
// in Err and Close.
func NewErrorIterator(err error) Iterator {
	return &errorIterator{err: err}
}
