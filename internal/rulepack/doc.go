// Package rulepack compiles CUE rule packs into workflow rules.
//
// A pack is a single CUE file declaring a tenant and a set of rules:
//
//	tenant: "acme"
//
//	rule: "vip-escalation": {
//		entity:  "issue"
//		trigger: "on_create"
//		order:   10
//		when: [
//			{field: "priority", op: "equals", value: "critical"},
//			{field: "tags", op: "contains", value: "vip", join: "or"},
//		]
//		then: [
//			{action: "assign_to_group", params: {group_id: "sev1"}},
//		]
//	}
//
// The compiler uses the CUE SDK's Go API directly (not a CLI
// subprocess) and reports errors with source positions. Compilation
// only checks shape; semantic checks live in workflow.Rule.Validate
// and the pack linter.
package rulepack
