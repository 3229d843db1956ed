package core

// Summary maps a category name to the total spent in it. Categories with
// no expenses are absent.
type Summary map[string]Money

// Summarize groups expenses by exact category and sums them in cents.
func Summarize(expenses []Expense) Summary {
	s := Summary{}
	for _, e := range expenses {
		s[e.Category] = s[e.Category].Add(e.Amount)
	}
	return s
}

// Total is the sum over every category.
func (s Summary) Total() Money {
	var total Money
	for _, m := range s {
		total = total.Add(m)
	}
	return total
}
