package core

import "fmt"

// JarSet is a validated set of allocation percentages, one per jar
// category. A JarSet can only be constructed when the percentages sum to
// exactly 100, so holding one is proof the allocation invariant holds.
type JarSet struct {
	percentages map[JarType]int
}

// NewJarSet builds a JarSet from per-jar percentages. Every jar category
// must be present (zero is allowed) and the sum must be exactly 100.
func NewJarSet(percentages map[JarType]int) (JarSet, error) {
	sum := 0
	for _, jar := range AllJarTypes() {
		pct, ok := percentages[jar]
		if !ok {
			return JarSet{}, fmt.Errorf("%w: missing percentage for jar %s", ErrInvalidAllocation, jar)
		}
		if pct < 0 || pct > 100 {
			return JarSet{}, fmt.Errorf("%w: jar %s has percentage %d", ErrInvalidAllocation, jar, pct)
		}
		sum += pct
	}
	if len(percentages) != len(AllJarTypes()) {
		return JarSet{}, fmt.Errorf("%w: unknown jar in percentage set", ErrInvalidAllocation)
	}
	if sum != 100 {
		return JarSet{}, fmt.Errorf("%w: sum is %d", ErrInvalidAllocation, sum)
	}
	cp := make(map[JarType]int, len(percentages))
	for jar, pct := range percentages {
		cp[jar] = pct
	}
	return JarSet{percentages: cp}, nil
}

// DefaultJarSet is the allocation new accounts start with.
func DefaultJarSet() JarSet {
	js, err := NewJarSet(map[JarType]int{
		JarToys:     20,
		JarBooks:    20,
		JarShopping: 20,
		JarCharity:  10,
		JarWishlist: 30,
	})
	if err != nil {
		panic(err) // static percentages, cannot fail
	}
	return js
}

// Percentage returns the allocation percentage for a jar.
func (js JarSet) Percentage(jar JarType) int {
	return js.percentages[jar]
}

// Percentages returns a copy of the per-jar percentages.
func (js JarSet) Percentages() map[JarType]int {
	cp := make(map[JarType]int, len(js.percentages))
	for jar, pct := range js.percentages {
		cp[jar] = pct
	}
	return cp
}

// Share is one jar's portion of a split amount.
type Share struct {
	Jar    JarType
	Amount Tokens
}

// SplitShares distributes amount across the jar set proportionally to the
// configured percentages. Each jar's share is rounded half-up; the last jar
// in declaration order receives the remainder instead of its rounded share,
// so the shares always sum to amount exactly. Every share is >= 0.
func SplitShares(amount Tokens, js JarSet) []Share {
	jars := AllJarTypes()
	shares := make([]Share, len(jars))
	var distributed Tokens
	for i, jar := range jars[:len(jars)-1] {
		pct := Tokens(js.Percentage(jar))
		share := (amount*pct + 50) / 100 // integer half-up
		distributed += share
		shares[i] = Share{Jar: jar, Amount: share}
	}
	last := len(jars) - 1
	shares[last] = Share{Jar: jars[last], Amount: amount - distributed}

	// Half-up rounding can overshoot when the last jar's percentage is
	// small, leaving a negative remainder. Borrow the shortfall back from
	// jars that rounded above their exact proportion; those jars hold at
	// least 1 token, so no share goes negative.
	for i := last - 1; i >= 0 && shares[last].Amount < 0; i-- {
		pct := Tokens(js.Percentage(jars[i]))
		for shares[last].Amount < 0 && shares[i].Amount*100 > amount*pct {
			shares[i].Amount--
			shares[last].Amount++
		}
	}
	return shares
}
