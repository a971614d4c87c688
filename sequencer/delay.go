package sequencer

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"mailsequence/models"
)

// MaxWaitMinutes is the largest wait that still fits a time.Duration
const MaxWaitMinutes = int64(math.MaxInt64 / int64(time.Minute))

// ScheduledAction is one email to send at an absolute fire time
type ScheduledAction struct {
	SequenceID uint
	Step       int
	NodeID     string

	To      string
	Subject string
	Body    string

	FireAt time.Time
	Offset time.Duration
}

// Payload converts the action into the send email job payload
func (a ScheduledAction) Payload() models.EmailPayload {
	return models.EmailPayload{
		To:         a.To,
		Subject:    a.Subject,
		Body:       a.Body,
		SequenceID: a.SequenceID,
	}
}

// Accumulate walks the plan in order keeping a running delay. Every email
// first adds the fixed spacing and then fires at now plus the running total;
// a wait node adds its minutes and produces no action.
func Accumulate(plan *Plan, sequenceID uint, now time.Time, opts Options) ([]ScheduledAction, error) {
	var (
		total   time.Duration
		actions []ScheduledAction
	)

	for _, cn := range plan.Nodes {
		switch cn.Kind {
		case KindColdEmail:
			subject, body, err := emailContent(cn.Node, opts.StrictLabels)
			if err != nil {
				return nil, err
			}

			if total, err = addDelay(total, opts.spacing()); err != nil {
				return nil, malformedLabelf(cn.Node.ID, cn.Kind, "%v", err)
			}
			actions = append(actions, ScheduledAction{
				SequenceID: sequenceID,
				Step:       len(actions),
				NodeID:     cn.Node.ID,
				To:         plan.Recipient,
				Subject:    subject,
				Body:       body,
				FireAt:     now.Add(total),
				Offset:     total,
			})

		case KindWaitDelay:
			minutes, err := waitMinutes(cn.Node)
			if err != nil {
				return nil, err
			}
			if total, err = addDelay(total, time.Duration(minutes)*time.Minute); err != nil {
				return nil, malformedLabelf(cn.Node.ID, cn.Kind, "%v", err)
			}
		}
	}

	return actions, nil
}

// addDelay adds d to the running total, refusing to wrap past the largest
// representable duration.
func addDelay(total, d time.Duration) (time.Duration, error) {
	if d > math.MaxInt64-total {
		return 0, fmt.Errorf("accumulated delay exceeds %v", time.Duration(math.MaxInt64))
	}
	return total + d, nil
}

// emailContent reads subject and body. The label form is
// "Cold-Email\n- (<subject>) <body>".
func emailContent(n models.SequenceNode, strict bool) (string, string, error) {
	var (
		subject, body       string
		hasSubject, hasBody bool
	)

	if n.Data.Kind == models.NodeKindColdEmail {
		subject, body = n.Data.Subject, n.Data.Body
		hasSubject, hasBody = subject != "", body != ""
	} else {
		label := n.Data.Label
		subject, hasSubject = between(label, "- (", ")")
		if i := strings.Index(label, ") "); i >= 0 {
			body, hasBody = label[i+2:], true
		}
	}

	if strict {
		if !hasSubject || strings.TrimSpace(subject) == "" {
			return "", "", malformedLabelf(n.ID, KindColdEmail, "email has no subject")
		}
		if !hasBody || strings.TrimSpace(body) == "" {
			return "", "", malformedLabelf(n.ID, KindColdEmail, "email has no body")
		}
	}
	return subject, body, nil
}

// waitMinutes reads the delay. The label form is "Wait/Delay\n- (<n> min)".
func waitMinutes(n models.SequenceNode) (int64, error) {
	if n.Data.Kind == models.NodeKindWaitDelay {
		if n.Data.Minutes == nil {
			return 0, malformedLabelf(n.ID, KindWaitDelay, "wait node has no minutes")
		}
		minutes := int64(*n.Data.Minutes)
		if minutes < 0 {
			return 0, malformedLabelf(n.ID, KindWaitDelay, "negative delay %d", minutes)
		}
		if minutes > MaxWaitMinutes {
			return 0, malformedLabelf(n.ID, KindWaitDelay, "delay of %d minutes exceeds the maximum of %d", minutes, MaxWaitMinutes)
		}
		return minutes, nil
	}

	raw, ok := between(n.Data.Label, "- (", " min")
	if !ok {
		return 0, malformedLabelf(n.ID, KindWaitDelay, "expected \"- (<n> min)\" in wait label")
	}
	minutes, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, malformedLabelf(n.ID, KindWaitDelay, "delay %q is not an integer", raw)
	}
	if minutes < 0 {
		return 0, malformedLabelf(n.ID, KindWaitDelay, "negative delay %d", minutes)
	}
	if minutes > MaxWaitMinutes {
		return 0, malformedLabelf(n.ID, KindWaitDelay, "delay of %d minutes exceeds the maximum of %d", minutes, MaxWaitMinutes)
	}
	return minutes, nil
}
