package rules

import "travelguard/antifraud/internal/domain"

// Behavior thresholds, milliseconds.
const (
	minHumanSessionMS    = 3000
	minHumanFirstClickMS = 200
	minHumanKeystrokeMS  = 40
)

// BotRule looks for interaction patterns no human produces.
type BotRule struct {
	ActivityDelta int
	TypingDelta   int
}

func (r *BotRule) Name() string { return NameBot }

func (r *BotRule) Evaluate(event *domain.Event, _ *Evidence) domain.RuleOutcome {
	b := event.Behavior

	var hits []domain.RuleOutcome
	switch {
	case b.SessionDurationMS != nil && b.PointerMoves != nil &&
		*b.SessionDurationMS < minHumanSessionMS && *b.PointerMoves == 0:
		hits = append(hits, flagged(NameBot, domain.FlagBotLikeActivity, r.ActivityDelta, map[string]any{
			"session_duration_ms": *b.SessionDurationMS,
			"mouse_moves_count":   *b.PointerMoves,
		}))
	case b.FirstInteractionMS != nil && *b.FirstInteractionMS < minHumanFirstClickMS:
		hits = append(hits, flagged(NameBot, domain.FlagBotLikeActivity, r.ActivityDelta, map[string]any{
			"first_click_delay_ms": *b.FirstInteractionMS,
		}))
	}
	if b.TypingIntervalMS != nil && *b.TypingIntervalMS < minHumanKeystrokeMS {
		hits = append(hits, flagged(NameBot, domain.FlagAutofillOrBot, r.TypingDelta, map[string]any{
			"typing_speed_ms_avg": *b.TypingIntervalMS,
		}))
	}
	return strongest(NameBot, hits)
}
