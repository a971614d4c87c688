package controller

import (
	"errors"
	"log"

	"mailsequence/models"
	"mailsequence/sequencer"
	"mailsequence/utils"

	"github.com/gofiber/fiber/v2"
)

type SequenceController struct {
	Engine *sequencer.Engine
	Logger *log.Logger
}

func NewSequenceController(engine *sequencer.Engine, logger *log.Logger) *SequenceController {
	return &SequenceController{
		Engine: engine,
		Logger: logger,
	}
}

// StartProcess saves a new sequence and schedules its emails
func (sc *SequenceController) StartProcess(c *fiber.Ctx) error {
	var input struct {
		Nodes []models.SequenceNode `json:"nodes"`
		Edges []models.SequenceEdge `json:"edges"`
	}

	if err := c.BodyParser(&input); err != nil {
		sc.Logger.Printf("Error parsing request body: %v", err)
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	seq, res, err := sc.Engine.Submit(c.UserContext(), input.Nodes, input.Edges)
	if err != nil {
		return sc.respondError(c, err, seq)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":     true,
		"message":     "Sequence saved and emails scheduled successfully",
		"sequenceId":  seq.ID,
		"scheduledAt": seq.ScheduledAt,
		"jobCount":    len(res.Jobs),
	})
}

// ScheduleSequence retries scheduling of a stored sequence that is still pending
func (sc *SequenceController) ScheduleSequence(c *fiber.Ctx) error {
	id, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid sequence ID", nil)
	}

	res, err := sc.Engine.Schedule(c.UserContext(), id)
	if err != nil {
		return sc.respondError(c, err, &models.Sequence{ID: id})
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"message":     "Emails scheduled successfully",
		"sequenceId":  res.Sequence.ID,
		"scheduledAt": res.Sequence.ScheduledAt,
		"jobCount":    len(res.Jobs),
	})
}

// GetAllSequences returns every sequence, newest first
func (sc *SequenceController) GetAllSequences(c *fiber.Ctx) error {
	sequences, err := sc.Engine.Store.List(c.UserContext())
	if err != nil {
		return sc.respondError(c, err, nil)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"count":   len(sequences),
		"data":    sequences,
	})
}

// GetSequenceByID returns a single sequence
func (sc *SequenceController) GetSequenceByID(c *fiber.Ctx) error {
	id, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid sequence ID", nil)
	}

	seq, err := sc.Engine.Store.Get(c.UserContext(), id)
	if err != nil {
		return sc.respondError(c, err, nil)
	}

	return c.JSON(utils.SuccessResponse(seq))
}

// GetSequenceJobs returns the durable jobs created for a sequence
func (sc *SequenceController) GetSequenceJobs(c *fiber.Ctx) error {
	id, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid sequence ID", nil)
	}

	if _, err := sc.Engine.Store.Get(c.UserContext(), id); err != nil {
		return sc.respondError(c, err, nil)
	}
	jobs, err := sc.Engine.Store.Jobs(c.UserContext(), id)
	if err != nil {
		return sc.respondError(c, err, nil)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"count":   len(jobs),
		"data":    jobs,
	})
}

func (sc *SequenceController) respondError(c *fiber.Ctx, err error, seq *models.Sequence) error {
	status, message := fiber.StatusInternalServerError, "Error saving sequence"

	switch {
	case errors.Is(err, sequencer.ErrValidation), errors.Is(err, sequencer.ErrMalformedLabel):
		status, message = fiber.StatusBadRequest, err.Error()
	case errors.Is(err, sequencer.ErrMissingLeadSource):
		status, message = fiber.StatusBadRequest, "Failed to process sequence - check for a valid Lead-Source node"
	case errors.Is(err, sequencer.ErrNotFound):
		status, message = fiber.StatusNotFound, "Sequence not found"
	case errors.Is(err, sequencer.ErrAlreadyScheduled):
		status, message = fiber.StatusConflict, "Sequence has already been scheduled"
	case errors.Is(err, sequencer.ErrLockHeld):
		status, message = fiber.StatusConflict, "Sequence is being scheduled by another request"
	case errors.Is(err, sequencer.ErrScheduler):
		message = "Error scheduling emails"
	}

	response := fiber.Map{
		"success": false,
		"message": message,
	}
	if seq != nil && seq.ID != 0 {
		response["sequenceId"] = seq.ID
	}
	if status >= fiber.StatusInternalServerError {
		response["error"] = err.Error()
		context := map[string]interface{}{"path": c.Path()}
		if seq != nil {
			context["sequence_id"] = seq.ID
		}
		utils.LogError("sequence_request_failed", err, context)
	}

	return c.Status(status).JSON(response)
}
