package inbox

import "github.com/ast-secret/inboxcore/internal/domain"

// Stats is the analytics snapshot behind the dashboard's export feature.
// Everything here is derived from the live collection on each call.
type Stats struct {
	TotalMessages       int
	TotalReactions      int
	AverageReactions    float64
	MostPopularReaction domain.ReactionKind
	RepliedMessages     int
	ResponseRatePercent int
	PublicMessages      int
	PrivateMessages     int
	UnreadMessages      int
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	st.TotalMessages = len(s.messages)

	var heart, fire, laugh int
	for _, m := range s.messages {
		heart += m.Reactions.Heart
		fire += m.Reactions.Fire
		laugh += m.Reactions.Laugh
		if m.HasReply() {
			st.RepliedMessages++
		}
		if m.IsPublic {
			st.PublicMessages++
		} else {
			st.PrivateMessages++
		}
		if !m.IsRead {
			st.UnreadMessages++
		}
	}
	st.TotalReactions = heart + fire + laugh
	if st.TotalMessages > 0 {
		st.AverageReactions = float64(st.TotalReactions) / float64(st.TotalMessages)
		st.ResponseRatePercent = int(float64(st.RepliedMessages)/float64(st.TotalMessages)*100 + 0.5)
	}

	// Ties resolve heart > fire > laugh.
	switch {
	case heart >= fire && heart >= laugh:
		st.MostPopularReaction = domain.ReactionHeart
	case fire >= heart && fire >= laugh:
		st.MostPopularReaction = domain.ReactionFire
	default:
		st.MostPopularReaction = domain.ReactionLaugh
	}
	return st
}
