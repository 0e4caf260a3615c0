package command

// Ledger is the insertion-ordered record of command results for one agent.
// It is not safe for concurrent use on its own; the Executor guards it.
type Ledger struct {
	order []string
	byID  map[string]*Result
}

func NewLedger() *Ledger {
	return &Ledger{byID: make(map[string]*Result)}
}

func (l *Ledger) Add(r *Result) {
	if _, exists := l.byID[r.ID()]; !exists {
		l.order = append(l.order, r.ID())
	}
	l.byID[r.ID()] = r
}

func (l *Ledger) Get(id string) (*Result, error) {
	r, ok := l.byID[id]
	if !ok {
		return nil, NotFoundError("Command Result", id)
	}
	return r, nil
}

func (l *Ledger) List() []*Result {
	out := make([]*Result, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.byID[id])
	}
	return out
}

// Last returns the most recently added result, or nil.
func (l *Ledger) Last() *Result {
	if len(l.order) == 0 {
		return nil
	}
	return l.byID[l.order[len(l.order)-1]]
}

func (l *Ledger) Len() int {
	return len(l.order)
}
