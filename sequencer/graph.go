package sequencer

import (
	"sort"
	"strings"

	"mailsequence/models"
	"mailsequence/utils"

	"github.com/badoux/checkmail"
)

// Label markers the flowchart editor writes as the first line of a node label
const (
	LeadSourceMarker = "Lead-Source"
	ColdEmailMarker  = "Cold-Email"
	WaitDelayMarker  = "Wait/Delay"
)

// NodeKind is the type tag recovered from a node
type NodeKind int

const (
	KindUnknown NodeKind = iota
	KindLeadSource
	KindColdEmail
	KindWaitDelay
)

func (k NodeKind) String() string {
	switch k {
	case KindLeadSource:
		return "LeadSource"
	case KindColdEmail:
		return "ColdEmail"
	case KindWaitDelay:
		return "WaitDelay"
	default:
		return "Unknown"
	}
}

// ClassifiedNode is a flowchart node annotated with its type tag
type ClassifiedNode struct {
	Node models.SequenceNode
	Kind NodeKind
}

// Plan is the output of ParseGraph: the recipient and the nodes in
// execution order.
type Plan struct {
	Recipient  string
	LeadNodeID string
	Nodes      []ClassifiedNode
}

type graphInput struct {
	Nodes []models.SequenceNode `validate:"required,min=1,dive"`
	Edges []models.SequenceEdge `validate:"required,min=1,dive"`
}

// ParseGraph validates a submitted graph, resolves the recipient address from
// the first Lead-Source node and classifies every node. Nodes of an
// unrecognized type are kept as KindUnknown and ignored downstream.
func ParseGraph(nodes []models.SequenceNode, edges []models.SequenceEdge, opts Options) (*Plan, error) {
	if len(nodes) == 0 {
		return nil, validationErrorf("nodes are required and must be a non-empty array")
	}
	if len(edges) == 0 {
		return nil, validationErrorf("edges are required and must be a non-empty array")
	}
	if err := utils.ValidateStruct(graphInput{Nodes: nodes, Edges: edges}); err != nil {
		return nil, validationErrorf("%v", err)
	}

	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		if _, dup := index[n.ID]; dup {
			return nil, validationErrorf("duplicate node id %q", n.ID)
		}
		index[n.ID] = i
	}
	for _, e := range edges {
		if _, ok := index[e.Source]; !ok {
			return nil, validationErrorf("edge %s references unknown source node %q", e.ID, e.Source)
		}
		if _, ok := index[e.Target]; !ok {
			return nil, validationErrorf("edge %s references unknown target node %q", e.ID, e.Target)
		}
	}

	ordered := nodes
	if opts.Order == OrderEdges {
		var err error
		if ordered, err = topoSort(nodes, edges, index); err != nil {
			return nil, err
		}
	}

	plan := &Plan{Nodes: make([]ClassifiedNode, 0, len(ordered))}
	for _, n := range ordered {
		plan.Nodes = append(plan.Nodes, ClassifiedNode{Node: n, Kind: classify(n)})
	}

	var lead *models.SequenceNode
	for i := range plan.Nodes {
		if plan.Nodes[i].Kind == KindLeadSource {
			lead = &plan.Nodes[i].Node
			break
		}
	}
	if lead == nil {
		return nil, ErrMissingLeadSource
	}

	recipient, err := recipientOf(*lead)
	if err != nil {
		return nil, err
	}
	plan.Recipient = recipient
	plan.LeadNodeID = lead.ID
	return plan, nil
}

func classify(n models.SequenceNode) NodeKind {
	switch n.Data.Kind {
	case models.NodeKindLeadSource:
		return KindLeadSource
	case models.NodeKindColdEmail:
		return KindColdEmail
	case models.NodeKindWaitDelay:
		return KindWaitDelay
	}

	label := n.Data.Label
	switch {
	case strings.HasPrefix(label, LeadSourceMarker):
		return KindLeadSource
	case strings.HasPrefix(label, ColdEmailMarker):
		return KindColdEmail
	case strings.HasPrefix(label, WaitDelayMarker):
		return KindWaitDelay
	}
	return KindUnknown
}

func recipientOf(n models.SequenceNode) (string, error) {
	var addr string
	if n.Data.Kind == models.NodeKindLeadSource {
		addr = n.Data.Email
	} else {
		var ok bool
		if addr, ok = between(n.Data.Label, "- (", ")"); !ok {
			return "", malformedLabelf(n.ID, KindLeadSource, "expected \"- (<email>)\" in lead source label")
		}
	}

	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", malformedLabelf(n.ID, KindLeadSource, "lead source has no email address")
	}
	if err := checkmail.ValidateFormat(addr); err != nil {
		return "", malformedLabelf(n.ID, KindLeadSource, "invalid recipient %q: %v", addr, err)
	}
	return addr, nil
}

// topoSort orders nodes along the edges using Kahn's algorithm. Among nodes
// that are ready at the same time the one submitted first wins.
func topoSort(nodes []models.SequenceNode, edges []models.SequenceEdge, index map[string]int) ([]models.SequenceNode, error) {
	inDeg := make([]int, len(nodes))
	next := make([][]int, len(nodes))
	for _, e := range edges {
		src, dst := index[e.Source], index[e.Target]
		next[src] = append(next[src], dst)
		inDeg[dst]++
	}

	var ready []int
	for i, d := range inDeg {
		if d == 0 {
			ready = append(ready, i)
		}
	}

	out := make([]models.SequenceNode, 0, len(nodes))
	for len(ready) > 0 {
		sort.Ints(ready)
		cur := ready[0]
		ready = ready[1:]
		out = append(out, nodes[cur])

		for _, dst := range next[cur] {
			inDeg[dst]--
			if inDeg[dst] == 0 {
				ready = append(ready, dst)
			}
		}
	}

	if len(out) != len(nodes) {
		return nil, validationErrorf("cycle detected: ordered %d of %d nodes", len(out), len(nodes))
	}
	return out, nil
}

// between returns the text after the first open marker up to the next close
// marker.
func between(s, open, close string) (string, bool) {
	i := strings.Index(s, open)
	if i < 0 {
		return "", false
	}
	rest := s[i+len(open):]
	j := strings.Index(rest, close)
	if j < 0 {
		return "", false
	}
	return rest[:j], true
}
