package domain

// RemovalReason explains why a biller was dropped from a cascade
type RemovalReason string

const (
	RemovalReason3DSIneligible RemovalReason = "3ds_ineligible"
	// A third-party biller cannot send the payer back without a redirect URL
	RemovalReasonNoRedirectURL RemovalReason = "no_redirect_url"
)

// CascadeEntry is one biller in a cascade with its submit budget
type CascadeEntry struct {
	Biller        Biller `json:"biller"`
	MaxSubmits    int    `json:"max_submits"`
	Submits       int    `json:"submits"`
	PaymentMethod string `json:"payment_method,omitempty"`
}

// Remaining returns how many more submits this biller may receive
func (e CascadeEntry) Remaining() int {
	if e.Submits >= e.MaxSubmits {
		return 0
	}
	return e.MaxSubmits - e.Submits
}

// RemovedBiller records a biller dropped after construction
type RemovedBiller struct {
	Biller Biller        `json:"biller"`
	Reason RemovalReason `json:"reason"`
}

// Cascade is an ordered list of billers with per-biller submit budgets.
// Methods never modify the receiver; each transformation returns a new value.
type Cascade struct {
	entries []CascadeEntry
	removed []RemovedBiller
}

// NewCascade builds a cascade from entries, clamping budgets to at least one
func NewCascade(entries []CascadeEntry) Cascade {
	cp := make([]CascadeEntry, len(entries))
	for i, e := range entries {
		if e.MaxSubmits < 1 {
			e.MaxSubmits = 1
		}
		if e.Submits < 0 {
			e.Submits = 0
		}
		cp[i] = e
	}
	return Cascade{entries: cp}
}

// RestoreCascade rebuilds a cascade from persisted entries and removals
func RestoreCascade(entries []CascadeEntry, removed []RemovedBiller) Cascade {
	c := NewCascade(entries)
	c.removed = append([]RemovedBiller(nil), removed...)
	return c
}

// Entries returns a copy of the cascade entries in order
func (c Cascade) Entries() []CascadeEntry {
	return append([]CascadeEntry(nil), c.entries...)
}

// Removed returns a copy of the removal record
func (c Cascade) Removed() []RemovedBiller {
	return append([]RemovedBiller(nil), c.removed...)
}

// Len returns the number of billers in the cascade
func (c Cascade) Len() int {
	return len(c.entries)
}

// IsEmpty reports whether the cascade holds no billers
func (c Cascade) IsEmpty() bool {
	return len(c.entries) == 0
}

// FirstBiller returns the next biller to be attempted: the first entry that
// still has submit budget. Zero value when the cascade is exhausted.
func (c Cascade) FirstBiller() Biller {
	if e, ok := c.Next(); ok {
		return e.Biller
	}
	return Biller{}
}

// Next returns the first entry with remaining budget
func (c Cascade) Next() (CascadeEntry, bool) {
	for _, e := range c.entries {
		if e.Remaining() > 0 {
			return e, true
		}
	}
	return CascadeEntry{}, false
}

// Exhausted reports whether every biller's budget has been consumed
func (c Cascade) Exhausted() bool {
	_, ok := c.Next()
	return !ok
}

// Entry returns the entry for the named biller
func (c Cascade) Entry(billerName string) (CascadeEntry, bool) {
	for _, e := range c.entries {
		if e.Biller.Name == billerName {
			return e, true
		}
	}
	return CascadeEntry{}, false
}

// RecordSubmit returns a cascade with one more submit counted against the
// named biller. It fails when the biller is unknown or out of budget.
func (c Cascade) RecordSubmit(billerName string) (Cascade, error) {
	for i, e := range c.entries {
		if e.Biller.Name != billerName {
			continue
		}
		if e.Remaining() == 0 {
			return c, NewDomainError(ErrorCodeSubmitBudgetExhausted, "biller submit budget exhausted").
				WithDetail("biller", billerName).
				WithDetail("max_submits", e.MaxSubmits)
		}
		next := c.clone()
		next.entries[i].Submits++
		return next, nil
	}
	return c, NewDomainError(ErrorCodeSubmitBudgetExhausted, "biller is not part of the cascade").
		WithDetail("biller", billerName)
}

// Without returns a cascade with billers rejected by keep removed and recorded
// under reason.
func (c Cascade) Without(reason RemovalReason, keep func(Biller) bool) Cascade {
	next := Cascade{removed: append([]RemovedBiller(nil), c.removed...)}
	for _, e := range c.entries {
		if keep(e.Biller) {
			next.entries = append(next.entries, e)
			continue
		}
		next.removed = append(next.removed, RemovedBiller{Biller: e.Biller, Reason: reason})
	}
	return next
}

// WithPaymentMethod returns a cascade whose first entry is annotated with the
// payment method determined after construction.
func (c Cascade) WithPaymentMethod(method string) Cascade {
	next := c.clone()
	if len(next.entries) > 0 {
		next.entries[0].PaymentMethod = method
	}
	return next
}

// WasRemoved reports whether the named biller was removed for reason
func (c Cascade) WasRemoved(billerName string, reason RemovalReason) bool {
	for _, r := range c.removed {
		if r.Biller.Name == billerName && r.Reason == reason {
			return true
		}
	}
	return false
}

// BillerNames returns the biller names in cascade order
func (c Cascade) BillerNames() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.Biller.Name
	}
	return names
}

func (c Cascade) clone() Cascade {
	return Cascade{
		entries: append([]CascadeEntry(nil), c.entries...),
		removed: append([]RemovedBiller(nil), c.removed...),
	}
}
