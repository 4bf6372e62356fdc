package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrTeacherAccessOnly ErrCode = "TEACHER_ACCESS_ONLY"
	ErrNotAttemptOwner   ErrCode = "NOT_ATTEMPT_OWNER"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrMarksMismatch  ErrCode = "MARKS_MISMATCH"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Exam lifecycle ────────────────────────────────────────────────
	ErrExamNotActive     ErrCode = "EXAM_NOT_ACTIVE"
	ErrOutsideExamWindow ErrCode = "OUTSIDE_EXAM_WINDOW"
	ErrExamLocked        ErrCode = "EXAM_LOCKED"
	ErrNoQuestions       ErrCode = "NO_QUESTIONS"

	// ─── Attempt lifecycle ─────────────────────────────────────────────
	ErrAttemptLimitReached  ErrCode = "ATTEMPT_LIMIT_REACHED"
	ErrAttemptInProgress    ErrCode = "ATTEMPT_ALREADY_IN_PROGRESS"
	ErrAttemptNotInProgress ErrCode = "ATTEMPT_NOT_IN_PROGRESS"
	ErrStaleSubmission      ErrCode = "STALE_SUBMISSION"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrTokenExpired:
		return "The authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."
	case ErrTeacherAccessOnly:
		return "This resource is restricted to teachers."
	case ErrNotAttemptOwner:
		return "This attempt belongs to another student."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrMarksMismatch:
		return "Total marks must equal the sum of all question marks."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "The resource was not found."
	case ErrConflict:
		return "The resource already exists."

	// ─── Exam lifecycle ────────────────────────────────────────────────
	case ErrExamNotActive:
		return "This exam is not currently active."
	case ErrOutsideExamWindow:
		return "This exam is not open at this time."
	case ErrExamLocked:
		return "This exam has recorded attempts and can no longer be restructured."
	case ErrNoQuestions:
		return "This exam has no questions."

	// ─── Attempt lifecycle ─────────────────────────────────────────────
	case ErrAttemptLimitReached:
		return "You have used all allowed attempts for this exam."
	case ErrAttemptInProgress:
		return "You already have an attempt in progress for this exam."
	case ErrAttemptNotInProgress:
		return "This attempt is no longer in progress."
	case ErrStaleSubmission:
		return "The submission window for this attempt has closed."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
