package processor

// snapshot holds a verbatim copy of every distinct account buffer. Buffers
// are keyed by the address of their first byte, so two AccountInfo entries
// sharing storage produce one entry and are restored once.
type snapshot struct {
	entries []snapEntry
	headers [][]byte
}

type snapEntry struct {
	buf   []byte
	saved []byte
}

func takeSnapshot(accounts []*AccountInfo) *snapshot {
	s := &snapshot{headers: make([][]byte, len(accounts))}
	index := make(map[*byte]int, len(accounts))
	for i, info := range accounts {
		if info == nil {
			continue
		}
		s.headers[i] = info.Data
		if len(info.Data) == 0 {
			continue
		}
		id := &info.Data[0]
		if j, ok := index[id]; ok {
			// Same storage seen through a longer window: keep the wider copy.
			if len(info.Data) > len(s.entries[j].buf) {
				s.entries[j] = snapEntry{buf: info.Data, saved: append([]byte(nil), info.Data...)}
			}
			continue
		}
		index[id] = len(s.entries)
		s.entries = append(s.entries, snapEntry{buf: info.Data, saved: append([]byte(nil), info.Data...)})
	}
	return s
}

// restore writes every saved buffer back and resets each entry's slice header
func (s *snapshot) restore(accounts []*AccountInfo) {
	for _, e := range s.entries {
		copy(e.buf, e.saved)
	}
	for i, info := range accounts {
		if info != nil {
			info.Data = s.headers[i]
		}
	}
}
