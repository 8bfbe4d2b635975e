package association

// Result is the view returned by proxy reads. Collections expose Records,
// singular associations expose One. An absent result means the owner was
// deleted from the backing store.
type Result struct {
	arity   Arity
	records []Record
	absent  bool
}

func newResult(arity Arity, records []Record) Result {
	out := make([]Record, len(records))
	copy(out, records)
	if arity == Singular && len(out) > 1 {
		out = out[:1]
	}
	return Result{arity: arity, records: out}
}

func absentResult(arity Arity) Result {
	return Result{arity: arity, absent: true}
}

// Absent reports whether the owner no longer resolves in the backing store.
func (r Result) Absent() bool { return r.absent }

// Arity returns the arity of the association the result was read from.
func (r Result) Arity() Arity { return r.arity }

// Records returns a copy of the records in order.
func (r Result) Records() []Record {
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// One returns the single target or nil.
func (r Result) One() Record {
	if len(r.records) == 0 {
		return nil
	}
	return r.records[0]
}

func (r Result) Len() int { return len(r.records) }

func (r Result) Empty() bool { return len(r.records) == 0 }

// Contains checks membership by record identity.
func (r Result) Contains(record Record) bool {
	return contains(r.records, record)
}
