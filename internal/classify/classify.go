package classify

import (
	"strings"
	"sync"

	"github.com/reims-io/docflow/internal/document"
)

// defaultRules maps filename keywords to categories. First match wins,
// checked in this order so the more specific phrases come first.
var defaultRules = []rule{
	{keyword: "rent_roll", category: document.CategoryRentRoll},
	{keyword: "rentroll", category: document.CategoryRentRoll},
	{keyword: "rent roll", category: document.CategoryRentRoll},
	{keyword: "balance_sheet", category: document.CategoryBalanceSheet},
	{keyword: "balance", category: document.CategoryBalanceSheet},
	{keyword: "income_statement", category: document.CategoryIncomeStatement},
	{keyword: "income", category: document.CategoryIncomeStatement},
	{keyword: "p&l", category: document.CategoryIncomeStatement},
	{keyword: "profit", category: document.CategoryIncomeStatement},
	{keyword: "cash_flow", category: document.CategoryCashFlowStatement},
	{keyword: "cashflow", category: document.CategoryCashFlowStatement},
}

type rule struct {
	keyword  string
	category document.Category
}

// Classifier suggests a document category from a filename. Users can
// teach it extra keyword mappings at runtime; learned rules take
// precedence over the built-in ones.
type Classifier struct {
	mu      sync.RWMutex
	learned []rule
}

func New() *Classifier {
	return &Classifier{}
}

// Suggest returns the category implied by the filename, or
// CategoryOther when nothing matches. It never fails: an unclassified
// document is simply "other" and the user can override it.
func (c *Classifier) Suggest(filename string) document.Category {
	name := strings.ToLower(filename)

	c.mu.RLock()
	learned := c.learned
	c.mu.RUnlock()

	for _, r := range learned {
		if strings.Contains(name, r.keyword) {
			return r.category
		}
	}

	for _, r := range defaultRules {
		if strings.Contains(name, r.keyword) {
			return r.category
		}
	}

	return document.CategoryOther
}

// Learn remembers that filenames containing keyword belong to category.
// Later lessons win over earlier ones.
func (c *Classifier) Learn(keyword string, category document.Category) {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" || !category.Valid() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.learned = append([]rule{{keyword: keyword, category: category}}, c.learned...)
}
