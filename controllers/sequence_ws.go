package controller

import (
	"context"
	"time"

	"mailsequence/models"
	"mailsequence/utils"

	"github.com/gofiber/websocket/v2"
)

// SequenceProgress is a snapshot of a sequence's job states
type SequenceProgress struct {
	SequenceID uint                  `json:"sequenceId"`
	Status     string                `json:"status"`
	Total      int                   `json:"total"`
	Queued     int                   `json:"queued"`
	Running    int                   `json:"running"`
	Done       int                   `json:"done"`
	Failed     int                   `json:"failed"`
	Percent    int                   `json:"percent"`
	Finished   bool                  `json:"finished"`
	NextRunAt  *time.Time            `json:"nextRunAt,omitempty"`
	Jobs       []models.ScheduledJob `json:"jobs"`
}

func buildProgress(seq *models.Sequence, jobs []models.ScheduledJob) SequenceProgress {
	p := SequenceProgress{
		SequenceID: seq.ID,
		Status:     seq.Status,
		Total:      len(jobs),
		Jobs:       jobs,
	}

	finished := 0
	for i := range jobs {
		if jobs[i].IsFinished() {
			finished++
		}

		switch jobs[i].Status {
		case models.JobStatusQueued:
			p.Queued++
			if p.NextRunAt == nil || jobs[i].RunAt.Before(*p.NextRunAt) {
				p.NextRunAt = utils.Pointer(jobs[i].RunAt)
			}
		case models.JobStatusRunning:
			p.Running++
		case models.JobStatusDone:
			p.Done++
		case models.JobStatusFailed:
			p.Failed++
		}
	}

	if p.Total > 0 {
		p.Percent = finished * 100 / p.Total
	}
	p.Finished = seq.Status == models.SequenceStatusProcessing && finished == p.Total
	return p
}

// HandleProgressWS streams job progress of one sequence until every job has
// finished or the client goes away.
func (sc *SequenceController) HandleProgressWS(c *websocket.Conn, interval time.Duration) {
	defer c.Close()

	id, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		c.WriteJSON(map[string]interface{}{"success": false, "message": "Invalid sequence ID"})
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		seq, err := sc.Engine.Store.Get(ctx, id)
		var jobs []models.ScheduledJob
		if err == nil {
			jobs, err = sc.Engine.Store.Jobs(ctx, id)
		}
		cancel()

		if err != nil {
			sc.Logger.Printf("Progress stream for sequence %d stopped: %v", id, err)
			c.WriteJSON(map[string]interface{}{"success": false, "message": err.Error()})
			return
		}

		progress := buildProgress(seq, jobs)
		if err := c.WriteJSON(progress); err != nil {
			sc.Logger.Printf("Error writing JSON: %v", err)
			return
		}
		if progress.Finished {
			return
		}

		<-ticker.C
	}
}
