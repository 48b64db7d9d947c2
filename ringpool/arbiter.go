package ringpool

// pickWriter returns the index the writer may safely overwrite without
// tearing a segment any in-flight reader already holds. Caller must
// hold mu. Rules, in order:
//
//  1. Default to lastWritten.
//  2. Scan every other index; the first with borrows == 0 wins.
//  3. If every other segment is pinned, fall back to lastWritten: the
//     conflation path.
func (p *pool) pickWriter() int {
	target := p.lastWritten
	for i := range p.segments {
		if i == p.lastWritten {
			continue
		}
		if p.segments[i].borrows == 0 {
			return i
		}
	}
	return target
}

// pickReader returns the index a newly-arriving Borrow should see and
// increments its borrow count. Caller must hold mu. lastWritten is
// always the newest fully-committed frame: pickWriter's rules 2 and 3 mean
// the writer only ever targets it in place when every other segment
// is pinned, so handing it to a fresh reader here cannot race an
// in-flight copy except during that same conflation fallback, where
// the writer's target and lastWritten are one and the same index
// anyway (the one documented unsafe tear window).
func (p *pool) pickReader() int {
	idx := p.lastWritten
	p.segments[idx].borrows++
	return idx
}
