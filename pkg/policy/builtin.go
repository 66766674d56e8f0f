package policy

// BuiltinPolicies returns the policies shipped with the binary.
func BuiltinPolicies() []Policy {
	return []Policy{
		maxDiscountPolicy(),
		quantitySanityPolicy(),
		itemCountPolicy(),
		duplicateItemsPolicy(),
	}
}

// maxDiscountPolicy rejects discounts no sales rep can grant.
func maxDiscountPolicy() Policy {
	return Policy{
		Name:        "max-discount",
		Description: "Rejects order or item discounts above 50 percent",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package orderpilot.policies.discount

import rego.v1

deny contains violation if {
	input.order.discount > 50
	violation := {
		"message": sprintf("order discount %v%% exceeds the 50%% limit", [input.order.discount]),
		"severity": "error",
	}
}

deny contains violation if {
	some item in input.order.items
	item.discount > 50
	violation := {
		"message": sprintf("item %s discount %v%% exceeds the 50%% limit", [item.code, item.discount]),
		"severity": "error",
		"item": item.code,
	}
}
`,
	}
}

// quantitySanityPolicy catches fat-fingered quantities before they reach
// the remote system.
func quantitySanityPolicy() Policy {
	return Policy{
		Name:        "quantity-sanity",
		Description: "Rejects line quantities above 10000 units",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package orderpilot.policies.quantity

import rego.v1

deny contains violation if {
	some item in input.order.items
	item.quantity > 10000
	violation := {
		"message": sprintf("item %s quantity %d exceeds the sanity limit of 10000", [item.code, item.quantity]),
		"severity": "error",
		"item": item.code,
	}
}
`,
	}
}

// itemCountPolicy bounds order size; the remote grid degrades badly past
// a few hundred rows.
func itemCountPolicy() Policy {
	return Policy{
		Name:        "item-count",
		Description: "Rejects orders with more than 200 line items",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package orderpilot.policies.size

import rego.v1

deny contains violation if {
	count(input.order.items) > 200
	violation := {
		"message": sprintf("order has %d items, limit is 200", [count(input.order.items)]),
		"severity": "error",
	}
}
`,
	}
}

// duplicateItemsPolicy warns on repeated article codes; usually a copy
// mistake in the order file.
func duplicateItemsPolicy() Policy {
	return Policy{
		Name:        "duplicate-items",
		Description: "Warns when the same article code appears more than once",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package orderpilot.policies.duplicates

import rego.v1

deny contains violation if {
	some i, j
	input.order.items[i].code == input.order.items[j].code
	i < j
	violation := {
		"message": sprintf("article %s appears more than once", [input.order.items[i].code]),
		"severity": "warning",
		"item": input.order.items[i].code,
	}
}
`,
	}
}
