package api

import (
	"io"
	"sync"
)

// progressReader reports upload progress as the transport drains the
// payload. Values are monotonically non-decreasing and capped at 99;
// the caller emits the final 100 once the server has acknowledged the
// request, so "100%" always means "accepted".
type progressReader struct {
	r      io.Reader
	total  int64
	report func(pct int)

	mu   sync.Mutex
	read int64
	last int
}

func newProgressReader(r io.Reader, total int64, report func(pct int)) *progressReader {
	return &progressReader{r: r, total: total, report: report}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n <= 0 {
		return n, err
	}

	p.mu.Lock()

	p.read += int64(n)

	pct := 0
	if p.total > 0 {
		pct = int(p.read * 100 / p.total)
	}

	if pct > 99 {
		pct = 99
	}

	emit := pct > p.last
	if emit {
		p.last = pct
	}

	p.mu.Unlock()

	if emit {
		p.report(pct)
	}

	return n, err
}
