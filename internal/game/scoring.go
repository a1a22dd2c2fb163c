package game

import "time"

// Scoring constants.
const (
	BaseScore        = 100
	PromptPenalty    = 10
	MaxSpeedBonus    = 30
	speedBonusBucket = 10 // seconds per lost bonus point
)

// Score returns the points for a question finished after promptsUsed prompts
// and seconds of play.
func Score(promptsUsed, seconds int) int {
	bonus := max(0, MaxSpeedBonus-seconds/speedBonusBucket)
	return max(0, BaseScore-PromptPenalty*promptsUsed+bonus)
}

// elapsedSeconds floors d to whole seconds. Negative spans count as zero.
func elapsedSeconds(d time.Duration) int {
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}
