package service

import (
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/propledger/internal/chart"
	invoicedomain "github.com/smallbiznis/propledger/internal/invoice/domain"
)

// categoryPriority orders line items for payment allocation. Lower settles
// first.
var categoryPriority = map[chart.Category]int{
	chart.CategoryRent:        1,
	chart.CategoryUtility:     2,
	chart.CategoryMaintenance: 3,
	chart.CategoryDeposit:     4,
	chart.CategoryMisc:        5,
}

const defaultCategoryPriority = 5

type allocation struct {
	LineItemID snowflake.ID
	Category   chart.Category
	Amount     int64
}

// allocatePayment partitions funds across line items in priority order.
// An item is either settled in full, or given the whole remainder when the
// remainder is at least minPartial, or skipped entirely; once a partial
// allocation happens the walk stops. The returned leftover is whatever the
// rules left unassigned; it is never silently attached to an item.
func allocatePayment(items []invoicedomain.LineItem, remaining map[snowflake.ID]int64, funds int64, minPartial int64) ([]allocation, int64) {
	ordered := make([]invoicedomain.LineItem, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		return priorityOf(ordered[i].Category) < priorityOf(ordered[j].Category)
	})

	allocations := make([]allocation, 0, len(ordered))
	left := funds
	for _, item := range ordered {
		if left <= 0 {
			break
		}
		due := remaining[item.ID]
		if due <= 0 {
			continue
		}
		if left >= due {
			allocations = append(allocations, allocation{LineItemID: item.ID, Category: item.Category, Amount: due})
			left -= due
			continue
		}
		if left >= minPartial {
			allocations = append(allocations, allocation{LineItemID: item.ID, Category: item.Category, Amount: left})
			left = 0
		}
		break
	}
	return allocations, left
}

func priorityOf(category chart.Category) int {
	if p, ok := categoryPriority[category]; ok {
		return p
	}
	return defaultCategoryPriority
}
