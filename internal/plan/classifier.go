package plan

import "membership-bridge/internal/config"

const defaultFallbackLabel = "Membership"

// Classifier maps purchased price ids to display tier labels. Total:
// unknown or absent ids get the fallback label.
type Classifier struct {
	tiers    map[string]string
	fallback string
}

func NewClassifier(cfg config.Plans) *Classifier {
	tiers := make(map[string]string, len(cfg.Tiers))
	for priceID, label := range cfg.Tiers {
		tiers[priceID] = label
	}

	fallback := cfg.FallbackLabel
	if fallback == "" {
		fallback = defaultFallbackLabel
	}

	return &Classifier{tiers: tiers, fallback: fallback}
}

func (c *Classifier) Classify(priceID string) string {
	if label, ok := c.tiers[priceID]; ok {
		return label
	}
	return c.fallback
}
