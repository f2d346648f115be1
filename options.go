package httpcore

import "time"

// OptionKey identifies one recognized ClientOptions entry. Declared once as
// a closed enum of typed keys -- the systems-language stand-in for the
// "enumerate all public static fields via reflection" pattern spec.md §9
// calls out, made explicit as a registration table (optionDefaults below)
// instead.
type OptionKey int

const (
	OptionFactory OptionKey = iota
	OptionWriteTimeoutMillis
	OptionResponseTimeoutMillis
	OptionMaxResponseLength
	OptionHeaders
	OptionDecoration
	OptionRequestIDGenerator
	OptionEndpointRemapper
	OptionPreprocessors
)

// optionKeys is the full registered key set, in declaration order; it's
// also the set ClientOptions.Of() with no arguments must expose in full
// (spec.md's "every key has exactly one default value" + testable
// property 4).
var optionKeys = []OptionKey{
	OptionFactory,
	OptionWriteTimeoutMillis,
	OptionResponseTimeoutMillis,
	OptionMaxResponseLength,
	OptionHeaders,
	OptionDecoration,
	OptionRequestIDGenerator,
	OptionEndpointRemapper,
	OptionPreprocessors,
}

// Decorator wraps a RoundTripper with additional behavior (logging,
// retry, circuit breaking); Decoration composes a chain of these.
type Decorator func(RoundTripper) RoundTripper

// RoundTripper is the minimal request/response execution seam ClientOptions
// decorates and preprocessors run in front of.
type RoundTripper interface {
	RoundTrip(req *Request) (*Response, error)
}

// Request and Response are deliberately minimal -- httpcore's core is the
// endpoint/resolver/pool/retry machinery, not a full HTTP message model.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
}

type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// EndpointRemapper rewrites the endpoint a request would otherwise be sent
// to (e.g. for client-side routing overrides).
type EndpointRemapper func(Endpoint) Endpoint

// Preprocessor runs before a request is dispatched, and may short-circuit
// it by returning a non-nil Response.
type Preprocessor func(*Request) (*Response, error)

// optionDefaults is the process-wide default value table; its key set is
// exactly optionKeys; ClientOptions.Of() fills any key the caller didn't
// override from here.
var optionDefaults = map[OptionKey]interface{}{
	OptionFactory:               nil,
	OptionWriteTimeoutMillis:    int64(1000),
	OptionResponseTimeoutMillis: int64(15000),
	OptionMaxResponseLength:     int64(10 << 20), // 10 MiB
	OptionHeaders:               map[string]string{},
	OptionDecoration:            []Decorator(nil),
	OptionRequestIDGenerator:    RequestIDGenerator(nil),
	OptionEndpointRemapper:      EndpointRemapper(nil),
	OptionPreprocessors:         []Preprocessor(nil),
}

// RequestIDGenerator produces a correlation id for a request.
type RequestIDGenerator func() string

// ClientOptions is an immutable, typed-key option bag. Build one with Of,
// which validates every supplied value the same way spec.md §4.6 and §8's
// S3/S4 scenarios require: numeric-limit keys reject a nil value,
// and headers are checked against the forbidden-pseudo-header and
// Connection-value rules ConnectionPool also enforces on the request path.
type ClientOptions struct {
	values map[OptionKey]interface{}
}

// Of builds ClientOptions from explicit overrides, merged over
// optionDefaults. Passing no overrides returns every default, matching
// "ClientOptions.of() without arguments exposes every default" (spec.md §6).
func Of(overrides map[OptionKey]interface{}) (ClientOptions, error) {
	if err := validateOverrides(overrides); err != nil {
		return ClientOptions{}, err
	}
	explicit := make(map[OptionKey]interface{}, len(overrides))
	for k, v := range overrides {
		explicit[k] = v
	}
	return ClientOptions{values: explicit}, nil
}

// OfMerged implements ClientOptions.of(first, second): first's explicitly
// set values win; any key first didn't set falls back to second's value
// for that key (which itself falls back to the process-wide default).
func OfMerged(first, second ClientOptions) ClientOptions {
	merged := make(map[OptionKey]interface{}, len(optionDefaults))
	for k, v := range optionDefaults {
		merged[k] = v
	}
	for k, v := range second.values {
		merged[k] = v
	}
	for k, v := range first.values {
		merged[k] = v
	}
	return ClientOptions{values: merged}
}

// Get returns the value configured for key, or its process-wide default.
func (o ClientOptions) Get(key OptionKey) interface{} {
	if v, ok := o.values[key]; ok {
		return v
	}
	return optionDefaults[key]
}

// AsMap returns every option key mapped to its effective value: overrides
// where set, defaults everywhere else. Its key set always equals
// optionKeys exactly (testable property 4).
func (o ClientOptions) AsMap() map[OptionKey]interface{} {
	out := make(map[OptionKey]interface{}, len(optionKeys))
	for _, k := range optionKeys {
		out[k] = o.Get(k)
	}
	return out
}

// ResponseTimeout is a typed convenience accessor over OptionResponseTimeoutMillis.
func (o ClientOptions) ResponseTimeout() time.Duration {
	return time.Duration(o.Get(OptionResponseTimeoutMillis).(int64)) * time.Millisecond
}

func validateOverrides(overrides map[OptionKey]interface{}) error {
	for key, v := range overrides {
		switch key {
		case OptionWriteTimeoutMillis, OptionResponseTimeoutMillis, OptionMaxResponseLength:
			if v == nil {
				return ErrInvalidArgument
			}
		case OptionHeaders:
			headers, ok := v.(map[string]string)
			if !ok {
				return ErrInvalidArgument
			}
			if err := ValidateRequestHeaders(headers); err != nil {
				return err
			}
		}
	}
	return nil
}
