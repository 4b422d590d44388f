package core

import "github.com/google/uuid"

// Role identifies the author of a message in the session transcript.
type Role string

// Message roles. Transcript entries are a closed tagged variant rather than
// arbitrary key/value records, so recovery from a persisted snapshot never
// needs runtime type sniffing.
const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in the append-only session transcript. The
// transcript is how the original topic is recovered after a restart.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Stage names the routing decision computed by the most recent stage.
type Stage string

// Routing targets of the workflow state machine.
const (
	StageGather Stage = "gather"
	StageWrite  Stage = "write"
	StageReview Stage = "review"
	StageEnd    Stage = "end"
)

// SearchResult is one deduplicated, summarized piece of evidence backing a
// draft. URL is the identity key: no two entries of a state's evidence list
// ever share one.
type SearchResult struct {
	Title          string   `json:"title"`
	Summary        string   `json:"summary"`
	URL            string   `json:"url"`
	Source         string   `json:"source"`
	PublishedDate  string   `json:"published_date,omitempty"`
	RelevanceScore *float64 `json:"relevance_score,omitempty"`
}

// ResearchState is the single shared state of one research session. It has
// exactly one writer at a time: the workflow engine that owns the session
// executes stages strictly sequentially, each receiving the state, mutating
// it, and computing NextStage. The session manager only ever reads cloned
// snapshots.
type ResearchState struct {
	Messages          []Message      `json:"messages"`
	Plan              *ResearchPlan  `json:"plan,omitempty"`
	Evidence          []SearchResult `json:"evidence"`
	Draft             string         `json:"draft,omitempty"`
	Feedback          string         `json:"feedback,omitempty"`
	IterationCount    int            `json:"iteration_count"`
	NextStage         Stage          `json:"next_stage"`
	PendingHumanInput string         `json:"pending_human_input,omitempty"`
}

// NewResearchState seeds a state with the research theme as the first human
// message and gather as the initial routing target.
func NewResearchState(theme string) *ResearchState {
	return &ResearchState{
		Messages:  []Message{{Role: RoleHuman, Content: theme}},
		Evidence:  []SearchResult{},
		NextStage: StageGather,
	}
}

// Topic returns the most recent human message, which carries the research
// theme. Empty when the transcript holds no human turn.
func (s *ResearchState) Topic() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleHuman {
			return s.Messages[i].Content
		}
	}
	return ""
}

// AppendMessage records a transcript entry.
func (s *ResearchState) AppendMessage(role Role, content string) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content})
}

// HasDraft reports whether a draft has been produced.
func (s *ResearchState) HasDraft() bool { return s.Draft != "" }

// EvidenceURLs returns the set of URLs already present in the evidence list.
func (s *ResearchState) EvidenceURLs() map[string]struct{} {
	seen := make(map[string]struct{}, len(s.Evidence))
	for _, r := range s.Evidence {
		seen[r.URL] = struct{}{}
	}
	return seen
}

// AddEvidence appends results whose URL is not yet present, first-seen wins.
// It returns the number of entries actually added.
func (s *ResearchState) AddEvidence(results ...SearchResult) int {
	seen := s.EvidenceURLs()
	added := 0
	for _, r := range results {
		if r.URL == "" {
			continue
		}
		if _, ok := seen[r.URL]; ok {
			continue
		}
		seen[r.URL] = struct{}{}
		s.Evidence = append(s.Evidence, r)
		added++
	}
	return added
}

// Progress is the snapshot the plan/route stage evaluates on re-entry.
type Progress struct {
	EvidenceCount int     `json:"evidence_count"`
	MeanRelevance float64 `json:"mean_relevance"`
	Coverage      float64 `json:"coverage"`
}

// Progress computes evidence count, mean relevance score of scored entries
// (0.5 when nothing is scored) and coverage against the plan's query list:
// min(1, count / (2 * queries)).
func (s *ResearchState) Progress() Progress {
	p := Progress{EvidenceCount: len(s.Evidence), MeanRelevance: 0.5}

	var sum float64
	var scored int
	for _, r := range s.Evidence {
		if r.RelevanceScore != nil {
			sum += *r.RelevanceScore
			scored++
		}
	}
	if scored > 0 {
		p.MeanRelevance = sum / float64(scored)
	}

	if s.Plan != nil && len(s.Plan.SearchQueries) > 0 {
		p.Coverage = min(1, float64(p.EvidenceCount)/float64(2*len(s.Plan.SearchQueries)))
	}
	return p
}

// Clone returns a deep copy safe for independent mutation, used for the
// non-blocking status snapshots handed to the session manager.
func (s *ResearchState) Clone() *ResearchState {
	clone := *s
	clone.Messages = make([]Message, len(s.Messages))
	copy(clone.Messages, s.Messages)
	clone.Evidence = make([]SearchResult, len(s.Evidence))
	copy(clone.Evidence, s.Evidence)
	if s.Plan != nil {
		clone.Plan = s.Plan.Clone()
	}
	return &clone
}

// NewID generates a unique identifier for sessions and transcripts.
func NewID() string { return uuid.NewString() }
