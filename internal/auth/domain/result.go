package domain

import "strings"

// FailureKind is the closed taxonomy of authentication failures. Validation
// and refresh never surface library errors; every failure is one of these.
type FailureKind string

const (
	FailureTokenMissing     FailureKind = "token_missing"
	FailureTokenMalformed   FailureKind = "token_malformed"
	FailureTokenExpired     FailureKind = "token_expired"
	FailureInvalidSignature FailureKind = "invalid_signature"
	FailureMissingClaims    FailureKind = "missing_claims"
	FailureTokenRevoked     FailureKind = "token_revoked"
)

// Failure describes why authentication did not succeed. The kind is for
// server-side audit logs only; callers present a uniform "authentication
// required" to the outside world so failure kinds cannot be enumerated.
type Failure struct {
	Kind FailureKind

	// Subject of the token when it could still be parsed (expired tokens),
	// for audit logging. Never exposed to the client.
	Subject string

	// MissingFields lists every absent required claim for
	// FailureMissingClaims.
	MissingFields []string
}

// ShouldLog reports whether this failure warrants an audit log entry.
// A missing token is the normal anonymous-request case and never logs;
// everything else does.
func (f *Failure) ShouldLog() bool {
	return f.Kind != FailureTokenMissing
}

// Error implements error so failures compose with the usual plumbing.
// The message never contains token material.
func (f *Failure) Error() string {
	if f.Kind == FailureMissingClaims && len(f.MissingFields) > 0 {
		return "authentication failed: " + string(f.Kind) + " (" + strings.Join(f.MissingFields, ", ") + ")"
	}
	return "authentication failed: " + string(f.Kind)
}

// Result is the outcome of validate/refresh operations: either a principal
// with its authorities, or a Failure. Exactly one of the two forms holds.
type Result struct {
	Principal   Principal
	Authorities []string

	Failure *Failure // nil on success
}

// OK reports whether the result is the success form.
func (r Result) OK() bool { return r.Failure == nil }

// Succeed builds the success form for p.
func Succeed(p Principal) Result {
	return Result{Principal: p, Authorities: p.Authorities()}
}

// Fail builds the failure form for the given kind.
func Fail(kind FailureKind) Result {
	return Result{Failure: &Failure{Kind: kind}}
}

// FailExpired builds a token_expired failure carrying the subject for audit.
func FailExpired(subject string) Result {
	return Result{Failure: &Failure{Kind: FailureTokenExpired, Subject: subject}}
}

// FailMissingClaims builds a missing_claims failure listing every absent
// required field.
func FailMissingClaims(fields []string) Result {
	return Result{Failure: &Failure{Kind: FailureMissingClaims, MissingFields: fields}}
}
