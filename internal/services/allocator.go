package services

import (
	"github.com/ads-hunter/backend/internal/models"
	"github.com/google/uuid"
)

// Skip reasons. A skip is an expected outcome, never an error.
const (
	SkipPacingLimit         = "pacing_limit"
	SkipNoEligibleChannel   = "no_eligible_channel"
	SkipNoMatchingAds       = "no_matching_ads"
	SkipMissingRecipient    = "missing_recipient"
	SkipNoTemplate          = "no_template"
	SkipAlreadyContacted    = "already_contacted"
	SkipInsufficientCredits = "insufficient_credits"
)

// AllocationState is what the allocator knows about one campaign right now.
type AllocationState struct {
	// Remaining credits per metered channel; a channel absent here has no budget.
	Remaining map[models.Channel]int64
	// Contacts already made today, total and per channel.
	Total         int
	ChannelCounts map[models.Channel]int
	DailyLimit    *int
	// UnmeteredCap bounds unmetered (WhatsApp) sends per day; 0 means no cap.
	UnmeteredCap int
	// Enabled marks channels the tenant can send on (settings present, sender configured).
	Enabled map[models.Channel]bool
}

func (s AllocationState) clone() AllocationState {
	c := s
	c.Remaining = make(map[models.Channel]int64, len(s.Remaining))
	for k, v := range s.Remaining {
		c.Remaining[k] = v
	}
	c.ChannelCounts = make(map[models.Channel]int, len(s.ChannelCounts))
	for k, v := range s.ChannelCounts {
		c.ChannelCounts[k] = v
	}
	return c
}

func (s AllocationState) atPacingLimit() bool {
	return s.DailyLimit != nil && s.Total >= *s.DailyLimit
}

func (s AllocationState) eligible(ch models.Channel) bool {
	if !s.Enabled[ch] {
		return false
	}
	if ch.Metered() {
		return s.Remaining[ch] > 0
	}
	return s.UnmeteredCap <= 0 || s.ChannelCounts[ch] < s.UnmeteredCap
}

func (s *AllocationState) take(ch models.Channel) {
	s.Total++
	s.ChannelCounts[ch]++
	if ch.Metered() {
		s.Remaining[ch]--
	}
}

type Allocation struct {
	Candidate models.AdCandidate
	Channel   models.Channel
}

type AllocationSkip struct {
	AdID   uuid.UUID
	Reason string
}

type AllocationPlan struct {
	Allocations []Allocation
	Skipped     []AllocationSkip
}

// SkipCounts groups skipped candidates by reason.
func (p AllocationPlan) SkipCounts() map[string]int {
	out := make(map[string]int)
	for _, s := range p.Skipped {
		out[s.Reason]++
	}
	return out
}

// Allocate assigns each candidate, in input order, the first eligible channel
// of priority. It never mutates state: consumption by earlier candidates is
// projected onto a private copy.
func Allocate(priority []models.Channel, candidates []models.AdCandidate, state AllocationState) AllocationPlan {
	plan := AllocationPlan{}
	st := state.clone()

	for _, cand := range candidates {
		if st.atPacingLimit() {
			plan.Skipped = append(plan.Skipped, AllocationSkip{AdID: cand.ID, Reason: SkipPacingLimit})
			continue
		}
		if cand.RecipientPhone == "" {
			plan.Skipped = append(plan.Skipped, AllocationSkip{AdID: cand.ID, Reason: SkipMissingRecipient})
			continue
		}

		chosen := models.Channel("")
		for _, ch := range priority {
			if st.eligible(ch) {
				chosen = ch
				break
			}
		}
		if chosen == "" {
			plan.Skipped = append(plan.Skipped, AllocationSkip{AdID: cand.ID, Reason: SkipNoEligibleChannel})
			continue
		}

		st.take(chosen)
		plan.Allocations = append(plan.Allocations, Allocation{Candidate: cand, Channel: chosen})
	}
	return plan
}
