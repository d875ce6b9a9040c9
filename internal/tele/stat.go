package tele

import (
	"fmt"
	"sync/atomic"
)

type Stat struct {
	Published uint32
	Dropped   uint32
	Errors    uint32
}

func (s *Stat) load() Stat {
	return Stat{
		Published: atomic.LoadUint32(&s.Published),
		Dropped:   atomic.LoadUint32(&s.Dropped),
		Errors:    atomic.LoadUint32(&s.Errors),
	}
}

func (s Stat) String() string {
	return fmt.Sprintf("published=%d dropped=%d errors=%d", s.Published, s.Dropped, s.Errors)
}
