package classify

import (
	"sort"

	"newsdigest/internal/domain"
)

const (
	// DefaultThreshold is the primary relevance cutoff for topic selection.
	DefaultThreshold = 0.5
	// DefaultOtherThreshold is the fallback cutoff for the catch-all label.
	DefaultOtherThreshold = 0.4
	// OtherLabel is the catch-all bucket used when nothing clears the primary cutoff.
	OtherLabel = "Other"
)

// Vocabulary holds the topic labels per digest audience.
type Vocabulary struct {
	Lowbank []string
	General []string
}

// Labels returns the full candidate label set handed to the scorer:
// both vocabularies plus the catch-all.
func (v Vocabulary) Labels() []string {
	labels := make([]string, 0, len(v.Lowbank)+len(v.General)+1)
	labels = append(labels, v.Lowbank...)
	labels = append(labels, v.General...)
	return append(labels, OtherLabel)
}

// Select applies the threshold/fallback policy to a score set. Every label at or
// above threshold is selected, ordered by descending score. When nothing clears
// the threshold but the best score reaches otherThreshold, the catch-all alone is
// selected. Otherwise the selection is empty and the item stays unrouted.
func Select(scores map[string]float64, threshold, otherThreshold float64) []string {
	var selected []string
	best := 0.0
	for label, score := range scores {
		if score >= threshold {
			selected = append(selected, label)
		}
		if score > best {
			best = score
		}
	}

	if len(selected) == 0 {
		if best >= otherThreshold {
			return []string{OtherLabel}
		}
		return nil
	}

	sort.Slice(selected, func(i, j int) bool {
		if scores[selected[i]] != scores[selected[j]] {
			return scores[selected[i]] > scores[selected[j]]
		}
		return selected[i] < selected[j]
	})
	return selected
}

// Route maps selected topics to digest queues. An item goes to lowbank when any
// topic belongs to the lowbank vocabulary, and to general when any topic belongs
// to the general vocabulary or the selection is exactly the catch-all. Routing to
// both digests at once is intentional: they are independent audiences.
func (v Vocabulary) Route(topics []string) []domain.DigestType {
	if len(topics) == 0 {
		return nil
	}

	var digests []domain.DigestType
	if containsAny(topics, v.Lowbank) {
		digests = append(digests, domain.DigestLowbank)
	}
	onlyOther := len(topics) == 1 && topics[0] == OtherLabel
	if containsAny(topics, v.General) || onlyOther {
		digests = append(digests, domain.DigestGeneral)
	}
	return digests
}

func containsAny(topics, vocabulary []string) bool {
	for _, t := range topics {
		for _, v := range vocabulary {
			if t == v {
				return true
			}
		}
	}
	return false
}
