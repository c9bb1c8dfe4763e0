package secrets

// DefaultRules returns the detection rules applied to ticket text.
func DefaultRules() []Rule {
	return []Rule{
		// Payment data
		{
			ID:          "card-number",
			Description: "Payment card number",
			Regex:       `\b(?:\d[ -]?){12,18}\d\b`,
			Severity:    "high",
			Luhn:        true,
		},
		{
			ID:          "card-security-code",
			Description: "Card security code",
			Regex:       `(?i)\b(?:cvv2?|cvc2?|security code)\s*[:#]?\s*\d{3,4}\b`,
			Severity:    "high",
		},
		{
			ID:          "card-expiry",
			Description: "Card expiry date",
			Regex:       `(?i)\b(?:exp(?:iry|iration)?(?: date)?)\s*[:#]?\s*(?:0[1-9]|1[0-2])\s*/\s*(?:\d{2}|\d{4})\b`,
			Keywords:    []string{"exp"},
			Severity:    "medium",
		},
		{
			ID:          "bank-account",
			Description: "Bank account or routing number",
			Regex:       `(?i)\b(?:account|acct|routing|iban)(?:\s*(?:number|no\.?|#))?\s*[:#]?\s*[A-Z]{0,2}\d[A-Z0-9]{7,32}\b`,
			Keywords:    []string{"account", "acct", "routing", "iban"},
			Severity:    "high",
		},
		{
			ID:          "us-ssn",
			Description: "US social security number",
			Regex:       `\b\d{3}-\d{2}-\d{4}\b`,
			Severity:    "high",
		},

		// Credentials
		{
			ID:          "password",
			Description: "Password",
			Regex:       `(?i)\b(?:password|passwd|pwd|passcode)\s*(?:is|[:=])\s*['"]?[^\s'"]{4,}['"]?`,
			Keywords:    []string{"pass", "pwd"},
			Severity:    "high",
		},
		{
			ID:          "generic-api-key",
			Description: "Generic API key",
			Regex:       `(?i)(?:api[_-]?key|apikey)\s*[:=]\s*['"]?[A-Za-z0-9_\-]{16,64}['"]?`,
			Keywords:    []string{"api", "key"},
			Severity:    "high",
		},
		{
			ID:          "anthropic-api-key",
			Description: "Anthropic API key",
			Regex:       `sk-ant-[A-Za-z0-9_\-]{20,}`,
			Severity:    "high",
		},
		{
			ID:          "openai-api-key",
			Description: "OpenAI API key",
			Regex:       `sk-(?:proj-)?[A-Za-z0-9]{32,}`,
			Severity:    "high",
		},
		{
			ID:          "stripe-key",
			Description: "Stripe API key",
			Regex:       `(?:sk|pk|rk)_(?:live|test)_[A-Za-z0-9]{24,}`,
			Severity:    "high",
		},
		{
			ID:          "bearer-token",
			Description: "Bearer token",
			Regex:       `(?i)\bbearer\s+[A-Za-z0-9_\-\.=]{20,}`,
			Severity:    "medium",
		},
		{
			ID:          "jwt",
			Description: "JSON Web Token",
			Regex:       `eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*`,
			Severity:    "medium",
		},
		{
			ID:          "private-key",
			Description: "Private key block",
			Regex:       `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY-----[\s\S]*?-----END (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY-----`,
			Severity:    "high",
		},
	}
}

// luhnValid reports whether the digits in s pass the Luhn checksum.
// Non-digit characters are ignored.
func luhnValid(s string) bool {
	var sum, n int
	double := false
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c < '0' || c > '9' {
			continue
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
		n++
	}
	return n >= 13 && sum%10 == 0
}
