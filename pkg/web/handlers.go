package web

import (
	"encoding/base64"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/voicetalk/voicegate/pkg/pipeline"
	"github.com/voicetalk/voicegate/pkg/provider"
	"github.com/voicetalk/voicegate/pkg/session"
)

// TurnRequest is the wire shape of one turn.
type TurnRequest struct {
	SessionID   string `json:"session_id"`
	AudioB64    string `json:"audio_b64,omitempty"`
	Encoding    string `json:"encoding,omitempty"`
	SampleRate  int    `json:"sample_rate,omitempty"`
	Text        string `json:"text,omitempty"`
	WantsSpeech bool   `json:"wants_speech"`
}

// TurnResponse is the wire shape of a turn result.
type TurnResponse struct {
	SessionID     string                  `json:"session_id"`
	Transcript    string                  `json:"transcript,omitempty"`
	Reply         string                  `json:"reply"`
	AudioB64      string                  `json:"audio_b64,omitempty"`
	Encoding      string                  `json:"encoding,omitempty"`
	SampleRate    int                     `json:"sample_rate,omitempty"`
	StageFailures []pipeline.StageFailure `json:"stage_failures"`
}

// handleTurn runs one pipeline turn.
func (s *Server) handleTurn(c *fiber.Ctx) error {
	var req TurnRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed request body"})
	}

	preq := &pipeline.Request{
		SessionID:   req.SessionID,
		Text:        req.Text,
		WantsSpeech: req.WantsSpeech,
	}
	if req.AudioB64 != "" {
		data, err := base64.StdEncoding.DecodeString(req.AudioB64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "audio_b64 is not valid base64"})
		}
		preq.Audio = &provider.AudioBuffer{
			Data:       data,
			Encoding:   provider.Encoding(req.Encoding),
			SampleRate: req.SampleRate,
			Channels:   1,
		}
	}

	result, err := s.orch.Run(c.UserContext(), preq)
	if err != nil {
		return s.turnError(c, err)
	}

	resp := TurnResponse{
		SessionID:     result.SessionID,
		Transcript:    result.Transcript,
		Reply:         result.Reply,
		StageFailures: result.StageFailures,
	}
	if resp.StageFailures == nil {
		resp.StageFailures = []pipeline.StageFailure{}
	}
	if result.Audio != nil {
		resp.AudioB64 = base64.StdEncoding.EncodeToString(result.Audio.Data)
		resp.Encoding = string(result.Audio.Encoding)
		resp.SampleRate = result.Audio.SampleRate
	}
	return c.JSON(resp)
}

// turnError maps pipeline errors onto HTTP status codes.
func (s *Server) turnError(c *fiber.Ctx, err error) error {
	var ve *provider.ValidationError
	if errors.As(err, &ve) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if errors.Is(err, session.ErrSessionBusy) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "session busy, retry later"})
	}

	var pe *pipeline.Error
	if errors.As(err, &pe) {
		s.logger.Error("turn failed", "stage", string(pe.Stage), "error", pe.Err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "all providers failed",
			"stage": string(pe.Stage),
		})
	}

	s.logger.Error("turn failed", "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}

// handleProviders returns the health snapshot for diagnostics.
func (s *Server) handleProviders(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"providers": s.registry.Snapshot()})
}

// handleHealthz reports process liveness.
func (s *Server) handleHealthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"sessions": s.orch.Sessions().Len(),
	})
}
