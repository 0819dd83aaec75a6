package caseapi

import (
	"io"
	"sync"
)

// progressReader reports the share of total bytes read so far. It emits 0
// before the first read and only emits when the integer percentage changes.
type progressReader struct {
	r     io.Reader
	total int64
	fn    ProgressFunc

	mu   sync.Mutex
	read int64
	last int
}

func newProgressReader(r io.Reader, total int64, fn ProgressFunc) *progressReader {
	pr := &progressReader{r: r, total: total, fn: fn, last: -1}
	pr.emit(0)
	return pr
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.mu.Lock()
		p.read += int64(n)
		pct := 100
		if p.total > 0 {
			pct = int(p.read * 100 / p.total)
		}
		p.mu.Unlock()
		p.emit(pct)
	}
	return n, err
}

// finish reports completion for transports that stop reading at the final
// boundary without a trailing EOF read.
func (p *progressReader) finish() {
	p.emit(100)
}

func (p *progressReader) emit(pct int) {
	if p.fn == nil {
		return
	}
	if pct > 100 {
		pct = 100
	}
	p.mu.Lock()
	if pct <= p.last {
		p.mu.Unlock()
		return
	}
	p.last = pct
	p.mu.Unlock()
	p.fn(pct)
}
