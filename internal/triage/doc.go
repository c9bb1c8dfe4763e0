// Package triage composes booking extraction, the rule engine, optional
// model-assisted case analysis and reason classification into a single
// refund decision.
//
// The orchestrator never returns an error and never returns Uncertain.
// Every failure mode degrades to a FinalDecision whose MethodUsed records
// what happened:
//
//	rules              rule engine decided on its own
//	hybrid             rule result was uncertain, case analysis decided
//	llm                no rule engine configured, case analysis decided
//	rules_fallback     case analysis failed, rule result kept one tier lower
//	extraction_failed  booking not found or low-confidence extraction
//	extraction_error   extractor crashed
//	validation_failed  no event date after extraction
//	rule_error         rule engine failed
//	llm_error          case analysis failed with nothing to fall back to
package triage
