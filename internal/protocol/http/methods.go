package http

// MethodClass tells the handler how to treat a request method.
type MethodClass int

const (
	// MethodUnknown is a token outside every known method; answered with 400.
	MethodUnknown MethodClass = iota

	// MethodSupported methods are served (GET, HEAD).
	MethodSupported

	// MethodUnsupported methods are recognised but answered with 501.
	MethodUnsupported
)

const (
	MethodGet  = "GET"
	MethodHead = "HEAD"
)

var methodClasses = map[string]MethodClass{
	MethodGet:  MethodSupported,
	MethodHead: MethodSupported,

	"PUT":     MethodUnsupported,
	"POST":    MethodUnsupported,
	"DELETE":  MethodUnsupported,
	"CONNECT": MethodUnsupported,
	"OPTIONS": MethodUnsupported,
	"TRACE":   MethodUnsupported,
}

// ClassifyMethod classifies a method token. Matching is case-sensitive as
// method names are.
func ClassifyMethod(method string) MethodClass {
	return methodClasses[method]
}

// MethodLabel maps a method token onto a bounded set of names suitable for
// metric labels: known methods keep their name, an empty token becomes
// "unparsed" and anything else "other".
func MethodLabel(method string) string {
	if method == "" {
		return "unparsed"
	}
	if _, ok := methodClasses[method]; ok {
		return method
	}
	return "other"
}
