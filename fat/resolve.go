package fat

import (
	"errors"
	"fmt"
)

// ChainSource maps clusters to sectors and follows chains sector by sector.
// *FS implements it.
type ChainSource interface {
	ClusterToSector(c uint32) (uint64, error)
	NextSector(s uint64) (next uint64, ok bool, err error)
}

// ResolveSectorMap lists, in file order, up to needed sectors of the chain
// that starts at cluster start. The result is shorter than needed when the
// chain ends early or runs into an out-of-range link; callers decide whether
// that is fatal. Read failures are returned as errors.
func ResolveSectorMap(src ChainSource, start uint32, needed int) ([]uint64, error) {
	if needed <= 0 {
		return nil, nil
	}
	s, err := src.ClusterToSector(start)
	if errors.Is(err, ErrBadCluster) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve cluster %d: %w", start, err)
	}

	sectors := make([]uint64, 0, needed)
	for {
		sectors = append(sectors, s)
		if len(sectors) == needed {
			return sectors, nil
		}
		next, ok, err := src.NextSector(s)
		if errors.Is(err, ErrBadCluster) {
			return sectors, nil
		}
		if err != nil {
			return sectors, fmt.Errorf("follow chain after sector %d: %w", s, err)
		}
		if !ok {
			return sectors, nil
		}
		s = next
	}
}
