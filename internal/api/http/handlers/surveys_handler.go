package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-lifecycle/internal/api/dto"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util"
)

// SurveysHandler accepts CSAT survey responses. The routes are public: the
// token in the path is the credential.
type SurveysHandler struct {
	service *service.SurveyService
}

// NewSurveysHandler constructs handler.
func NewSurveysHandler(surveyService *service.SurveyService) *SurveysHandler {
	return &SurveysHandler{service: surveyService}
}

// Respond POST /surveys/:token/response.
func (h *SurveysHandler) Respond(c *fiber.Ctx) error {
	var req dto.SurveyResponseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	survey, err := h.service.RespondToSurvey(c.UserContext(), c.Params("token"), req.Score)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SurveyResponse{
		ID:          survey.ID,
		TicketID:    survey.TicketID,
		Score:       survey.Score,
		SentAt:      survey.SentAt,
		RespondedAt: survey.RespondedAt,
	}})
}
