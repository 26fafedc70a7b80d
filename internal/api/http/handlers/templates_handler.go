package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/onboarding-service/internal/api/dto"
	"github.com/spec-kit/onboarding-service/internal/domain"
	"github.com/spec-kit/onboarding-service/internal/workflow"
)

// TemplatesHandler lists the registered workflow templates.
type TemplatesHandler struct {
	registry *workflow.Registry
}

// NewTemplatesHandler constructs the handler.
func NewTemplatesHandler(registry *workflow.Registry) *TemplatesHandler {
	return &TemplatesHandler{registry: registry}
}

// List handles GET /templates.
func (h *TemplatesHandler) List(c *fiber.Ctx) error {
	templates := h.registry.List()
	resp := make([]dto.TemplateResponse, 0, len(templates))
	for _, tpl := range templates {
		resp = append(resp, templateResponse(tpl))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Get handles GET /templates/:type.
func (h *TemplatesHandler) Get(c *fiber.Ctx) error {
	tpl, err := h.registry.Get(c.Params("type"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": templateResponse(tpl)})
}

func templateResponse(tpl domain.WorkflowTemplate) dto.TemplateResponse {
	acts := make([]dto.TemplateActivityResponse, 0, len(tpl.Activities))
	for _, def := range tpl.Activities {
		var kind domain.ActivityKind
		if def.Config != nil {
			kind = def.Config.Kind()
		}
		dependsOn := def.DependsOn
		if dependsOn == nil {
			dependsOn = []string{}
		}
		acts = append(acts, dto.TemplateActivityResponse{
			Key:            def.Key,
			Name:           def.Name,
			Kind:           kind,
			SequenceOrder:  def.SequenceOrder,
			Mandatory:      def.Mandatory,
			DependsOn:      dependsOn,
			EstimatedHours: def.EstimatedHours,
			AssignRole:     def.AssignRole,
		})
	}
	return dto.TemplateResponse{
		ID:         tpl.ID,
		Type:       tpl.Type,
		Name:       tpl.Name,
		SLADays:    tpl.SLADays,
		Activities: acts,
	}
}
