// Package secrets redacts payment and credential data from ticket text
// before it leaves the process, for example in a model prompt.
//
// Rules are regular expressions with optional keyword gates. Card-number
// rules additionally require a valid Luhn checksum so booking and order
// numbers are not redacted by accident. Findings record rule ids and
// offsets, never the matched value.
package secrets
