package models

import (
	"sort"
	"time"
)

// Core domain types shared by the gateway, retriever, collector,
// generator and orchestrator.

// RoutingPath records which answer path a request took.
type RoutingPath string

const (
	PathKBOnly       RoutingPath = "KB_ONLY"
	PathWebAugmented RoutingPath = "WEB_AUGMENTED"
	PathRejected     RoutingPath = "REJECTED"
)

// Query is the validated form of an incoming question. Immutable once
// built by the gateway.
type Query struct {
	CorrelationID string
	Text          string
	Accepted      bool
	RejectReason  string
	ReceivedAt    time.Time
}

// EvidenceKind tags where a piece of evidence came from.
type EvidenceKind string

const (
	EvidenceKB  EvidenceKind = "kb"
	EvidenceWeb EvidenceKind = "web"
)

// EvidenceItem is one unit of retrieved knowledge. Provenance is a KB
// document id for kb items and a URL for web items.
type EvidenceItem struct {
	Kind       EvidenceKind
	Text       string
	Score      float64
	Provenance string
	InsertedAt time.Time
}

// EvidenceSet is an ordered collection of evidence items. Insufficient
// marks a set that did not clear the configured retrieval bar and is
// the signal that drives web augmentation.
type EvidenceSet struct {
	Items        []EvidenceItem
	Insufficient bool
}

// SortByScore orders items by score descending. Ties go to the more
// recently inserted item.
func (es *EvidenceSet) SortByScore() {
	sort.SliceStable(es.Items, func(i, j int) bool {
		if es.Items[i].Score != es.Items[j].Score {
			return es.Items[i].Score > es.Items[j].Score
		}
		return es.Items[i].InsertedAt.After(es.Items[j].InsertedAt)
	})
}

// CountKind returns how many items carry the given source kind.
func (es *EvidenceSet) CountKind(kind EvidenceKind) int {
	n := 0
	for _, item := range es.Items {
		if item.Kind == kind {
			n++
		}
	}
	return n
}

// TopScore returns the highest score in the set, or 0 for an empty set.
func (es *EvidenceSet) TopScore() float64 {
	top := 0.0
	for _, item := range es.Items {
		if item.Score > top {
			top = item.Score
		}
	}
	return top
}

// RoutingDecision captures the path taken for one request together with
// the threshold values that triggered it, for auditability.
type RoutingDecision struct {
	CorrelationID  string
	Path           RoutingPath
	KBTopScore     float64
	MinScore       float64
	MinSufficient  int
	WebResultCount int
	DecidedAt      time.Time
}

// Solution is the structured output of the generator. Immutable once
// generated; Evidence back-references the set it was grounded on.
type Solution struct {
	Steps       []string
	FinalAnswer string
	BestEffort  bool
	Evidence    *EvidenceSet
}
