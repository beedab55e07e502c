package domain

import "fmt"

// Error types for consistent error handling across the portal.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrForbidden indicates the user lacks permission for the operation.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}

// ErrUnauthorized indicates a missing, invalid or expired session token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrConflict indicates the operation clashes with existing data
// (e.g. deleting a tenant that profiles still reference).
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// Identity provider error codes.
const (
	IdentityInvalidCredentials = "invalid_credentials"
	IdentityEmailInUse         = "email_in_use"
	IdentityWeakPassword       = "weak_password"
	IdentityInvalidEmail       = "invalid_email"
	IdentityUserNotFound       = "user_not_found"
	IdentityTooManyRequests    = "too_many_requests"
	IdentityUnavailable        = "unavailable"
)

var identityMessages = map[string]string{
	IdentityInvalidCredentials: "E-mail ou senha inválidos.",
	IdentityEmailInUse:         "Este e-mail já está em uso.",
	IdentityWeakPassword:       "A senha deve ter pelo menos 6 caracteres.",
	IdentityInvalidEmail:       "O formato do e-mail é inválido.",
	IdentityUserNotFound:       "Nenhum usuário encontrado com este e-mail.",
	IdentityTooManyRequests:    "Muitas tentativas. Tente novamente mais tarde.",
	IdentityUnavailable:        "Serviço de autenticação indisponível.",
}

// ErrIdentity is raised by the identity provider: unreachable service or
// rejected credentials. Code is one of the Identity* constants.
type ErrIdentity struct {
	Code string
	Err  error
}

func (e *ErrIdentity) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("identity error [%s]: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("identity error [%s]", e.Code)
}

func (e *ErrIdentity) Unwrap() error {
	return e.Err
}

// UserMessage is the text shown to the person who triggered the action.
func (e *ErrIdentity) UserMessage() string {
	if msg, ok := identityMessages[e.Code]; ok {
		return msg
	}
	return "Ocorreu um erro. Tente novamente."
}

// Retryable reports whether the failure is transient rather than a rejection.
func (e *ErrIdentity) Retryable() bool {
	return e.Code == IdentityUnavailable || e.Code == IdentityTooManyRequests
}

// ErrProfileResolution means no role could be derived for a principal,
// because the profile could neither be read nor created.
type ErrProfileResolution struct {
	UID string
	Err error
}

func (e *ErrProfileResolution) Error() string {
	return fmt.Sprintf("profile resolution failed for %s: %v", e.UID, e.Err)
}

func (e *ErrProfileResolution) Unwrap() error {
	return e.Err
}

// ErrSyncPartial means the primary write of a calendar entry succeeded but
// the mirror write did not. It is logged and never returned to callers.
type ErrSyncPartial struct {
	TenantID string
	EntryID  string
	Op       string
	Err      error
}

func (e *ErrSyncPartial) Error() string {
	return fmt.Sprintf("mirror %s failed for %s/%s: %v", e.Op, e.TenantID, e.EntryID, e.Err)
}

func (e *ErrSyncPartial) Unwrap() error {
	return e.Err
}

// Sides of the calendar dual write.
const (
	SidePrimary = "primary"
	SideMirror  = "mirror"
)

// ErrSyncFatal means a delete failed on one side. Callers must keep their
// local view of the entry.
type ErrSyncFatal struct {
	TenantID string
	EntryID  string
	Side     string
	Err      error
}

func (e *ErrSyncFatal) Error() string {
	return fmt.Sprintf("delete of %s/%s failed on %s: %v", e.TenantID, e.EntryID, e.Side, e.Err)
}

func (e *ErrSyncFatal) Unwrap() error {
	return e.Err
}
