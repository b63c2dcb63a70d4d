package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrInvalidSignature   ErrCode = "INVALID_SIGNATURE"
	ErrNoChallenge        ErrCode = "NO_LOGIN_CHALLENGE"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden        ErrCode = "FORBIDDEN"
	ErrPermissionDenied ErrCode = "PERMISSION_DENIED"
	ErrWalletAccessOnly ErrCode = "WALLET_ACCESS_ONLY"
	ErrAdminAccessOnly  ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidWallet  ErrCode = "INVALID_WALLET"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Quiz-specific ─────────────────────────────────────────────────
	ErrCooldownActive     ErrCode = "COOLDOWN_ACTIVE"
	ErrSessionConflict    ErrCode = "SESSION_CONFLICT"
	ErrNoActiveSession    ErrCode = "NO_ACTIVE_SESSION"
	ErrSessionExpired     ErrCode = "SESSION_EXPIRED"
	ErrSubmissionRejected ErrCode = "SUBMISSION_REJECTED"
	ErrInvalidAnswers     ErrCode = "INVALID_ANSWERS"
	ErrInsufficientFunds  ErrCode = "INSUFFICIENT_FUNDS"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Invalid email or password."
	case ErrSessionInvalidated:
		return "Your session has ended. Please sign in again."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid or expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have access to this resource."
	case ErrPermissionDenied:
		return "Permission denied."
	case ErrWalletAccessOnly:
		return "This resource is limited to wallet sessions."
	case ErrAdminAccessOnly:
		return "This resource is limited to administrators."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidWallet:
		return "Invalid wallet address."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."

	// ─── Quiz-specific ─────────────────────────────────────────────────
	case ErrCooldownActive:
		return "You already took the quiz this week. Please wait for the cooldown to end."
	case ErrSessionConflict:
		return "A quiz session is already active for this wallet."
	case ErrNoActiveSession:
		return "No active quiz session. Start a new quiz first."
	case ErrSessionExpired:
		return "The quiz time is over and the submission was not accepted."
	case ErrSubmissionRejected:
		return "Your answers were not submitted. Please try again."
	case ErrInvalidAnswers:
		return "One or more answers are not valid options."
	case ErrInsufficientFunds:
		return "Insufficient funds to pay the network fee."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
