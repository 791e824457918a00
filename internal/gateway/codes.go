package gateway

// CodeSuccess is the gateway response code for a completed payment.
const CodeSuccess = "00"

// responseCodeText maps gateway response codes to failure reasons shown to
// operators. Unknown codes fall through to a generic bucket.
var responseCodeText = map[string]string{
	"07": "transaction flagged as suspicious",
	"09": "card not registered for online payment",
	"10": "card verification failed more than 3 times",
	"11": "payment window expired",
	"12": "card or account is locked",
	"13": "wrong one-time password",
	"24": "cancelled by customer",
	"51": "insufficient funds",
	"65": "daily transaction limit exceeded",
	"75": "issuing bank under maintenance",
	"79": "wrong payment password too many times",
	"99": "other gateway error",
}

// ReasonFor returns the human-readable reason for a response code.
func ReasonFor(code string) string {
	if code == CodeSuccess {
		return "success"
	}
	if reason, ok := responseCodeText[code]; ok {
		return reason
	}
	return "other gateway error"
}
