package graph

import (
	"github.com/OFFIS-RIT/graphvec/pkg/common"
)

// MergeStats counts what Merge did with one extraction.
type MergeStats struct {
	EntitiesAccepted int `json:"entities_accepted"`
	EntitiesRejected int `json:"entities_rejected"`
	RelationsCreated int `json:"relations_created"`
	RelationsMerged  int `json:"relations_merged"`
	RelationsSkipped int `json:"relations_skipped"`
}

// Add accumulates other into s.
func (s *MergeStats) Add(other MergeStats) {
	s.EntitiesAccepted += other.EntitiesAccepted
	s.EntitiesRejected += other.EntitiesRejected
	s.RelationsCreated += other.RelationsCreated
	s.RelationsMerged += other.RelationsMerged
	s.RelationsSkipped += other.RelationsSkipped
}

// Merge folds one extraction into the graph. Entities are merged first, in
// order, then relations, in order.
func (g *KnowledgeGraph) Merge(ex common.Extraction) MergeStats {
	var stats MergeStats
	for _, name := range ex.Entities {
		if g.AddEntity(name) {
			stats.EntitiesAccepted++
		} else {
			stats.EntitiesRejected++
		}
	}
	for _, r := range ex.Relations {
		switch g.AddRelation(r.Source, r.Target, r.Relation, r.Confidence) {
		case RelationCreated:
			stats.RelationsCreated++
		case RelationMerged:
			stats.RelationsMerged++
		default:
			stats.RelationsSkipped++
		}
	}
	return stats
}
