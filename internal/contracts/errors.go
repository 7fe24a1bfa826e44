package contracts

import "errors"

// Domain errors. Callers match with errors.Is; operations wrap them with
// fmt.Errorf("%w: ...") to add detail.
var (
	ErrCompetitionNotFound       = errors.New("competition not found")
	ErrParticipantNotFound       = errors.New("participant not found")
	ErrAlreadyJoined             = errors.New("already joined")
	ErrCompetitionFull           = errors.New("competition full")
	ErrRegistrationClosed        = errors.New("registration closed")
	ErrInvalidStatusTransition   = errors.New("invalid status transition")
	ErrInvalidCompetitionSpec    = errors.New("invalid competition spec")
	ErrInvalidRulesConfiguration = errors.New("invalid rules configuration")
	ErrInvalidScoringMetric      = errors.New("invalid scoring metric")

	ErrCompetitionNotActive = errors.New("competition not active")
	ErrRulesLocked          = errors.New("rules locked")
	ErrInvalidValuation     = errors.New("invalid valuation")
	ErrResultsNotAvailable  = errors.New("results not available")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrStaleValuation       = errors.New("stale valuation")
)

// Error codes exposed at the API boundary
const (
	CodeCompetitionNotFound       = "COMPETITION_NOT_FOUND"
	CodeParticipantNotFound       = "PARTICIPANT_NOT_FOUND"
	CodeAlreadyJoined             = "ALREADY_JOINED"
	CodeCompetitionFull           = "COMPETITION_FULL"
	CodeRegistrationClosed        = "REGISTRATION_CLOSED"
	CodeInvalidStatusTransition   = "INVALID_STATUS_TRANSITION"
	CodeInvalidCompetitionSpec    = "INVALID_COMPETITION_SPEC"
	CodeInvalidRulesConfiguration = "INVALID_RULES_CONFIGURATION"
	CodeInvalidScoringMetric      = "INVALID_SCORING_METRIC"
	CodeCompetitionNotActive      = "COMPETITION_NOT_ACTIVE"
	CodeRulesLocked               = "RULES_LOCKED"
	CodeInvalidValuation          = "INVALID_VALUATION"
	CodeResultsNotAvailable       = "RESULTS_NOT_AVAILABLE"
	CodeInvalidRequest            = "INVALID_REQUEST"
	CodeStaleValuation            = "STALE_VALUATION"
	CodeInternal                  = "INTERNAL"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrCompetitionNotFound, CodeCompetitionNotFound},
	{ErrParticipantNotFound, CodeParticipantNotFound},
	{ErrAlreadyJoined, CodeAlreadyJoined},
	{ErrCompetitionFull, CodeCompetitionFull},
	{ErrRegistrationClosed, CodeRegistrationClosed},
	{ErrInvalidStatusTransition, CodeInvalidStatusTransition},
	{ErrInvalidCompetitionSpec, CodeInvalidCompetitionSpec},
	{ErrInvalidRulesConfiguration, CodeInvalidRulesConfiguration},
	{ErrInvalidScoringMetric, CodeInvalidScoringMetric},
	{ErrCompetitionNotActive, CodeCompetitionNotActive},
	{ErrRulesLocked, CodeRulesLocked},
	{ErrInvalidValuation, CodeInvalidValuation},
	{ErrResultsNotAvailable, CodeResultsNotAvailable},
	{ErrInvalidRequest, CodeInvalidRequest},
	{ErrStaleValuation, CodeStaleValuation},
}

// ErrorCode maps an error to its stable code. Unknown errors map to INTERNAL.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return CodeInternal
}

// IsDomainError reports whether err is an expected, caller-recoverable condition
func IsDomainError(err error) bool {
	code := ErrorCode(err)
	return code != "" && code != CodeInternal
}
