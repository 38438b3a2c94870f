package recno

// Mem is an in-memory Store.
type Mem struct {
	recs   [][]byte
	closed bool
}

func NewMem() *Mem {
	return &Mem{}
}

func (m *Mem) Get(n int) ([]byte, error) {
	if m.closed {
		return nil, ErrClosed
	}
	if n < 1 || n > len(m.recs) {
		return nil, ErrNotFound
	}
	return clone(m.recs[n-1]), nil
}

func (m *Mem) Last() (int, error) {
	if m.closed {
		return 0, ErrClosed
	}
	return len(m.recs), nil
}

func (m *Mem) Put(n int, data []byte) error {
	if m.closed {
		return ErrClosed
	}
	switch {
	case n >= 1 && n <= len(m.recs):
		m.recs[n-1] = clone(data)
	case n == len(m.recs)+1:
		m.recs = append(m.recs, clone(data))
	default:
		return ErrNotFound
	}
	return nil
}

func (m *Mem) InsertBefore(n int, data []byte) error {
	if m.closed {
		return ErrClosed
	}
	if n < 1 || n > len(m.recs)+1 {
		return ErrNotFound
	}
	m.insertAt(n-1, data)
	return nil
}

func (m *Mem) InsertAfter(n int, data []byte) error {
	if m.closed {
		return ErrClosed
	}
	if n < 0 || n > len(m.recs) {
		return ErrNotFound
	}
	m.insertAt(n, data)
	return nil
}

func (m *Mem) insertAt(idx int, data []byte) {
	m.recs = append(m.recs, nil)
	copy(m.recs[idx+1:], m.recs[idx:])
	m.recs[idx] = clone(data)
}

func (m *Mem) Delete(n int) error {
	if m.closed {
		return ErrClosed
	}
	if n < 1 || n > len(m.recs) {
		return ErrNotFound
	}
	copy(m.recs[n-1:], m.recs[n:])
	m.recs[len(m.recs)-1] = nil
	m.recs = m.recs[:len(m.recs)-1]
	return nil
}

func (m *Mem) Close() error {
	m.closed = true
	m.recs = nil
	return nil
}
