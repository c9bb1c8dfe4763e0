// Package mcp exposes the refund triage core as MCP tools for the
// conversational support agent.
//
// Tools are registered with the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp)
// and call the core packages directly. Every tool records invocation metrics,
// and the decision tool's text summary is scrubbed before it leaves the process.
//
// Tools:
//
//	refund_decide               decide a refund request
//	refund_extract_booking      extract booking fields from ticket text
//	refund_duplicates_analyze   resolve a duplicate-booking claim
//	refund_guard_check          check whether a booking may drive an automated outcome
//	refund_reason_classify      map decision reasoning to a cancellation reason code
//	tool_search                 discover the tools above by keyword
package mcp
