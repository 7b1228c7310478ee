package kms

import (
	"errors"
	"syscall"

	"github.com/outpostlabs/kmscore/internal/kmsabi"
)

// changeSet accumulates object/property/value triples for a single atomic
// commit: every mutation made while building one configuration round
// collapses into one ioctl instead of one per object.
type changeSet struct {
	byObject map[uint32][2][]uint64 // objID -> [propIDs, values] parallel slices
	order    []uint32
}

func newChangeSet() *changeSet {
	return &changeSet{byObject: make(map[uint32][2][]uint64)}
}

func (c *changeSet) set(objID, propID uint32, value uint64) {
	pair, ok := c.byObject[objID]
	if !ok {
		c.order = append(c.order, objID)
	}
	pair[0] = append(pair[0], uint64(propID))
	pair[1] = append(pair[1], value)
	c.byObject[objID] = pair
}

func (c *changeSet) empty() bool { return len(c.order) == 0 }

// commitTo flattens the accumulated per-object property writes into the
// parallel arrays AtomicCommit wants and issues the ioctl.
func (c *changeSet) commitTo(dev *Device, flags uint32) error {
	if c.empty() {
		return nil
	}
	var objs, propCounts, propIDs []uint32
	var propValues []uint64
	for _, objID := range c.order {
		pair := c.byObject[objID]
		objs = append(objs, objID)
		propCounts = append(propCounts, uint32(len(pair[0])))
		for _, pid := range pair[0] {
			propIDs = append(propIDs, uint32(pid))
		}
		propValues = append(propValues, pair[1]...)
	}
	if err := kmsabi.AtomicCommit(dev.file, flags, objs, propCounts, propIDs, propValues, 0); err != nil {
		return &CommitError{Cause: err, LostMaster: isEACCES(err)}
	}
	return nil
}

func isEACCES(err error) bool {
	return errors.Is(err, syscall.EACCES)
}
