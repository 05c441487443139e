package game

// ResolveStatus maps lifetime capital to the highest milestone it has
// reached.
func (e *Engine) ResolveStatus(capitalTotal float64) string {
	label := ""
	for _, m := range e.Catalog.Milestones {
		if capitalTotal >= m.Threshold {
			label = m.Label
		}
	}
	if label == "" {
		return "Beginner"
	}
	return label
}

// StatusTier is the 1-based position of label in the milestone table, or 0.
func (e *Engine) StatusTier(label string) int {
	for i, m := range e.Catalog.Milestones {
		if m.Label == label {
			return i + 1
		}
	}
	return 0
}
