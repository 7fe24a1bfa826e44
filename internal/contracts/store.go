package contracts

import "context"

// CompetitionStore is the persistence port of the engine.
// ⭐ SSOT: 저장소 구현(memory, postgres)은 이 인터페이스만 만족하면 됨
type CompetitionStore interface {
	Save(ctx context.Context, c *Competition) error
	Load(ctx context.Context, id string) (*Competition, error) // ErrCompetitionNotFound when absent
	List(ctx context.Context) ([]*Competition, error)

	SaveParticipant(ctx context.Context, p *Participant) error
	DeleteParticipant(ctx context.Context, competitionID, userID string) error // ErrParticipantNotFound when absent
	ListParticipants(ctx context.Context, competitionID string) ([]*Participant, error)

	SaveResults(ctx context.Context, r *Results) error
	LoadResults(ctx context.Context, competitionID string) (*Results, error) // ErrResultsNotAvailable when absent
}
