package domain

// Fraud recommendation codes
const (
	FraudCodeDefault          = 1000
	FraudCodeBlacklist        = 100
	FraudCodeCaptcha          = 200
	FraudCodeForce3DS         = 300
	FraudCodeBypassValidation = 400
)

// Fraud recommendation severities
const (
	FraudSeverityAllow = "Allow"
	FraudSeverityBlock = "Block"
)

// FraudRecommendation is a (code, severity, message) fraud decision
type FraudRecommendation struct {
	Code        int    `json:"code"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	PaymentType string `json:"payment_type,omitempty"`
}

// DefaultFraudRecommendation is the "no action" recommendation used when fraud
// screening is disabled or unavailable.
func DefaultFraudRecommendation() FraudRecommendation {
	return FraudRecommendation{
		Code:     FraudCodeDefault,
		Severity: FraudSeverityAllow,
		Message:  "Allow_Transaction",
	}
}

// IsDefault reports whether r carries no action
func (r FraudRecommendation) IsDefault() bool {
	return r.Code == FraudCodeDefault
}

// FraudRecommendations is the set of recommendations attached to a session
type FraudRecommendations []FraudRecommendation

// DefaultFraudRecommendations holds only the default recommendation
func DefaultFraudRecommendations() FraudRecommendations {
	return FraudRecommendations{DefaultFraudRecommendation()}
}

// ForPaymentType filters the set down to recommendations applicable to
// paymentType. Recommendations without a payment type apply to every type.
func (rs FraudRecommendations) ForPaymentType(paymentType string) FraudRecommendations {
	var out FraudRecommendations
	for _, r := range rs {
		if r.PaymentType == "" || r.PaymentType == paymentType {
			out = append(out, r)
		}
	}
	return out
}

// Has reports whether any recommendation carries code
func (rs FraudRecommendations) Has(code int) bool {
	for _, r := range rs {
		if r.Code == code {
			return true
		}
	}
	return false
}

// Primary returns the most severe recommendation, falling back to default.
// Block outranks Allow; among equals the first wins.
func (rs FraudRecommendations) Primary() FraudRecommendation {
	if len(rs) == 0 {
		return DefaultFraudRecommendation()
	}
	best := rs[0]
	for _, r := range rs[1:] {
		if best.Severity != FraudSeverityBlock && r.Severity == FraudSeverityBlock {
			best = r
		}
	}
	return best
}

// FraudAdvice is the flag bundle used to gate session transitions
type FraudAdvice struct {
	CaptchaRequired bool `json:"captcha_required"`
	Blacklisted     bool `json:"blacklisted"`
	Force3DS        bool `json:"force_3ds"`
	Detect3DSUsage  bool `json:"detect_3ds_usage"`
	BypassTemplates bool `json:"bypass_payment_template_validation"`
}

// DefaultFraudAdvice is the "no action" advice
func DefaultFraudAdvice() FraudAdvice {
	return FraudAdvice{}
}

// adviceTable maps recommendation codes to the advice flag they imply
var adviceTable = map[int]func(*FraudAdvice){
	FraudCodeBlacklist:        func(a *FraudAdvice) { a.Blacklisted = true },
	FraudCodeCaptcha:          func(a *FraudAdvice) { a.CaptchaRequired = true },
	FraudCodeForce3DS:         func(a *FraudAdvice) { a.Force3DS = true },
	FraudCodeBypassValidation: func(a *FraudAdvice) { a.BypassTemplates = true },
}

// AdviceFromRecommendations translates recommendations into advice using the
// fixed code mapping table. Unknown codes are ignored.
func AdviceFromRecommendations(rs FraudRecommendations) FraudAdvice {
	var advice FraudAdvice
	for _, r := range rs {
		if apply, ok := adviceTable[r.Code]; ok {
			apply(&advice)
		}
	}
	return advice
}

// FraudResultStatus distinguishes a provider answer from a fallback
type FraudResultStatus string

const (
	FraudResultOK          FraudResultStatus = "ok"
	FraudResultUnavailable FraudResultStatus = "unavailable"
	FraudResultDisabled    FraudResultStatus = "disabled"
)

// FraudResult is either a provider decision or the safe default applied
// because the provider could not answer. Err is set only when Unavailable.
type FraudResult struct {
	Status          FraudResultStatus
	Advice          FraudAdvice
	Recommendations FraudRecommendations
	Err             error
}

// FraudOK wraps a provider decision
func FraudOK(advice FraudAdvice, recs FraudRecommendations) FraudResult {
	if len(recs) == 0 {
		recs = DefaultFraudRecommendations()
	}
	return FraudResult{Status: FraudResultOK, Advice: advice, Recommendations: recs}
}

// FraudUnavailable is the fail-open result carrying the provider error
func FraudUnavailable(err error) FraudResult {
	return FraudResult{
		Status:          FraudResultUnavailable,
		Advice:          DefaultFraudAdvice(),
		Recommendations: DefaultFraudRecommendations(),
		Err:             err,
	}
}

// FraudDisabled is the default result for sites without fraud screening
func FraudDisabled() FraudResult {
	return FraudResult{
		Status:          FraudResultDisabled,
		Advice:          DefaultFraudAdvice(),
		Recommendations: DefaultFraudRecommendations(),
	}
}

// IsFallback reports whether the default advice was applied
func (r FraudResult) IsFallback() bool {
	return r.Status == FraudResultUnavailable
}
