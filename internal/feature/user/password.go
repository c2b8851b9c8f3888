package user

import (
	"errors"
	"regexp"
)

// Policy is the configured strength rule a candidate password must
// satisfy. Message is returned verbatim to the client on rejection.
type Policy struct {
	re      *regexp.Regexp
	Message string
}

func NewPolicy(pattern, message string) (*Policy, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if message == "" {
		message = "Password does not meet the strength requirements"
	}
	return &Policy{re: re, Message: message}, nil
}

// Validate returns an error carrying the policy message when the
// password does not match the configured pattern.
func (p *Policy) Validate(password string) error {
	if !p.re.MatchString(password) {
		return errors.New(p.Message)
	}
	return nil
}
