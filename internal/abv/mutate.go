package abv

import "sort"

// SetBit marks id present. Structural invariants are restored lazily by
// the next Normalize (triggered by Popcount and SortedIDs; GetBit reads the
// pending membership directly without normalizing).
func (r *Root) SetBit(id uint64) {
	if r.pending == nil {
		r.pending = make(map[uint64]bool)
	}
	if r.normalized {
		if r.GetBit(id) {
			return
		}
		r.seedPendingFromPartitions()
	}
	r.pending[id] = true
	r.normalized = false
}

// ClearBit marks id absent.
func (r *Root) ClearBit(id uint64) {
	if r.pending == nil {
		r.pending = make(map[uint64]bool)
	}
	if r.normalized {
		if !r.GetBit(id) {
			return
		}
		r.seedPendingFromPartitions()
	}
	r.pending[id] = false
	r.normalized = false
}

// seedPendingFromPartitions copies the currently normalized membership into
// pending so a subsequent SetBit/ClearBit can be folded in before the next
// Normalize call.
func (r *Root) seedPendingFromPartitions() {
	for _, id := range r.sortedIDsFromPartitions() {
		r.pending[id] = true
	}
}

// GetBit reports whether id is present, without requiring normalization.
func (r *Root) GetBit(id uint64) bool {
	if !r.normalized {
		present, ok := r.pending[id]
		if ok {
			return present
		}
		return false
	}
	pid, local := partitionOf(id)
	part := r.findPartition(pid)
	if part == nil {
		return false
	}
	return part.testBit(local)
}

func (r *Root) findPartition(pid uint32) *Partition {
	i := sort.Search(len(r.Partitions), func(i int) bool { return r.Partitions[i].PartitionID >= pid })
	if i < len(r.Partitions) && r.Partitions[i].PartitionID == pid {
		return r.Partitions[i]
	}
	return nil
}

func (p *Partition) testBit(local uint32) bool {
	i := sort.Search(len(p.Segments), func(i int) bool { return p.Segments[i].StartBit+segLen(p.Segments[i]) > local })
	if i >= len(p.Segments) {
		return false
	}
	seg := p.Segments[i]
	if local < seg.StartBit || local >= seg.StartBit+seg.NBits {
		return false
	}
	if seg.IsRLE {
		return seg.Membership == 1
	}
	offset := local - seg.StartBit
	return seg.Blocks[offset/64]&(uint64(1)<<(offset%64)) != 0
}

func segLen(s *Segment) uint32 { return s.NBits }

// Popcount returns the total cardinality, normalizing first if needed.
func (r *Root) Popcount() (uint64, error) {
	if err := r.Normalize(); err != nil {
		return 0, err
	}
	return r.Cardinality, nil
}

// SortedIDs returns every present identifier in ascending order,
// normalizing first if needed.
func (r *Root) SortedIDs() ([]uint64, error) {
	if err := r.Normalize(); err != nil {
		return nil, err
	}
	return r.sortedIDsFromPartitions(), nil
}

func (r *Root) sortedIDsFromPartitions() []uint64 {
	var ids []uint64
	for _, part := range r.Partitions {
		for _, seg := range part.Segments {
			if seg.IsRLE {
				if seg.Membership == 0 {
					continue
				}
				for i := uint32(0); i < seg.NBits; i++ {
					ids = append(ids, idOf(part.PartitionID, seg.StartBit+i))
				}
				continue
			}
			for i := uint32(0); i < seg.NBits; i++ {
				if seg.Blocks[i/64]&(uint64(1)<<(i%64)) != 0 {
					ids = append(ids, idOf(part.PartitionID, seg.StartBit+i))
				}
			}
		}
	}
	return ids
}
