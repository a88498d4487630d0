// Package validator holds the business rules applied to a trade submission
// before it is persisted. Rules run in a fixed order and the chain stops at
// the first rejection.
package validator

import (
	"errors"
	"fmt"
	"time"

	"github.com/navid-fn/tradestore/internal/models"
)

// Kind identifies why a submission was rejected.
type Kind string

const (
	MaturityExpired Kind = "MATURITY_EXPIRED"
	LowerVersion    Kind = "LOWER_VERSION"
)

// ValidationError is a business rejection. It is data for the consumer,
// never an infrastructure fault.
type ValidationError struct {
	Kind    Kind
	TradeID string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// AsValidationError unwraps err into a *ValidationError.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// Context carries what the rules need besides the submission itself.
type Context struct {
	// Now is the processing time, not the submission time.
	Now time.Time

	// CurrentMaxVersion is nil when the trade id has never been persisted.
	CurrentMaxVersion *int

	// LookupMaxVersion, when set, replaces CurrentMaxVersion and is only
	// called by the version rule, after the maturity rule has passed.
	LookupMaxVersion func() (*int, error)
}

func (c Context) maxVersion() (*int, error) {
	if c.LookupMaxVersion != nil {
		return c.LookupMaxVersion()
	}
	return c.CurrentMaxVersion, nil
}

// Func checks a submission. A rule that has no opinion on the action returns
// an empty action.
type Func func(sub models.TradeSubmission, vctx Context) (models.TradeAction, error)

// Rule is a named entry of the chain.
type Rule struct {
	Name  string
	Check Func
}

// Chain is an ordered list of rules.
type Chain []Rule

// DefaultChain returns the maturity rule followed by the version rule.
func DefaultChain() Chain {
	return Chain{
		{Name: "maturity_date", Check: CheckMaturity},
		{Name: "version", Check: CheckVersion},
	}
}

// Validate runs each rule in order and returns the first rejection. The
// resulting action is the last non-empty action reported, INSERT by default.
func (c Chain) Validate(sub models.TradeSubmission, vctx Context) (models.TradeAction, error) {
	action := models.ActionInsert
	for _, rule := range c {
		a, err := rule.Check(sub, vctx)
		if err != nil {
			return "", err
		}
		if a != "" {
			action = a
		}
	}
	return action, nil
}

// CheckMaturity rejects trades whose maturity date is strictly before the
// processing day.
func CheckMaturity(sub models.TradeSubmission, vctx Context) (models.TradeAction, error) {
	today := models.DateOf(vctx.Now)
	if models.DateOf(sub.MaturityDate).Before(today) {
		return "", &ValidationError{
			Kind:    MaturityExpired,
			TradeID: sub.TradeID,
			Message: fmt.Sprintf("Trade %s rejected: maturity date %s is earlier than today (%s).",
				sub.TradeID, models.FormatDate(sub.MaturityDate), models.FormatDate(today)),
		}
	}
	return "", nil
}

// CheckVersion compares the incoming version with the highest stored one:
// lower is rejected, equal overwrites the stored row, higher adds a new row.
// Lookup errors are returned as is, not as a *ValidationError.
func CheckVersion(sub models.TradeSubmission, vctx Context) (models.TradeAction, error) {
	maxVersion, err := vctx.maxVersion()
	if err != nil {
		return "", fmt.Errorf("look up max version of %s: %w", sub.TradeID, err)
	}
	if maxVersion == nil {
		return models.ActionInsert, nil
	}
	current := *maxVersion
	switch {
	case sub.Version < current:
		return "", &ValidationError{
			Kind:    LowerVersion,
			TradeID: sub.TradeID,
			Message: fmt.Sprintf("Trade %s rejected: incoming version %d is lower than stored version %d.",
				sub.TradeID, sub.Version, current),
		}
	case sub.Version == current:
		return models.ActionUpsert, nil
	default:
		return models.ActionInsert, nil
	}
}
