package validate

import "regexp"

var (
	emailRe  = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)
	letterRe = regexp.MustCompile(`[A-Za-z]`)
	digitRe  = regexp.MustCompile(`[0-9]`)
	symbolRe = regexp.MustCompile(`[!@#$%^&*()_+\-=\[\]{};:'",.<>/?\\|]`)
)

// Email checks the usual local@domain.tld shape.
func Email(s string) bool {
	return len(s) <= 100 && emailRe.MatchString(s)
}

// Password enforces the signup policy: at least 8 characters with at least
// one letter, one digit and one punctuation symbol.
func Password(s string) bool {
	return len(s) >= 8 &&
		letterRe.MatchString(s) &&
		digitRe.MatchString(s) &&
		symbolRe.MatchString(s)
}
