package handler

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SinaHo/phone-referral-auth/internal/middleware"
	"github.com/SinaHo/phone-referral-auth/internal/model"
	"github.com/SinaHo/phone-referral-auth/internal/service"
)

// ProfileHandler serves /userprofiles/.
type ProfileHandler struct {
	svc    service.ProfileService
	logger *zap.SugaredLogger
}

func NewProfileHandler(svc service.ProfileService, logger *zap.SugaredLogger) *ProfileHandler {
	return &ProfileHandler{svc: svc, logger: logger}
}

type UpdateProfileRequest struct {
	ReferralCode string  `json:"referral_code" form:"referral_code"`
	PhoneNumber  *string `json:"phone_number" form:"phone_number"`
}

type CreateProfileRequest struct {
	PhoneNumber string `json:"phone_number" form:"phone_number"`
}

func profileID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, service.ErrProfileNotFound
	}
	return id, nil
}

func queryInt(c *fiber.Ctx, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func pageURL(c *fiber.Ctx, page, size int) *string {
	u := fmt.Sprintf("%s%s?page=%d&page_size=%d", c.BaseURL(), c.Path(), page, size)
	return &u
}

// List handles GET /userprofiles/.
func (h *ProfileHandler) List(c *fiber.Ctx) error {
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return respondError(c, h.logger, service.ErrInvalidPage)
	}
	size, ok := queryInt(c, "page_size", service.DefaultPageSize)
	if !ok {
		size = service.DefaultPageSize
	}

	list, err := h.svc.List(c.UserContext(), page, size)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	out := model.ProfilePage{Count: list.Count, Results: list.Results}
	if out.Results == nil {
		out.Results = []model.ProfileView{}
	}
	if list.HasNext() {
		out.Next = pageURL(c, list.Page+1, list.PageSize)
	}
	if list.HasPrevious() {
		out.Previous = pageURL(c, list.Page-1, list.PageSize)
	}
	return c.JSON(out)
}

// Get handles GET /userprofiles/:id/.
func (h *ProfileHandler) Get(c *fiber.Ctx) error {
	id, err := profileID(c)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	v, err := h.svc.Get(c.UserContext(), middleware.GetPrincipal(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(v)
}

// Update handles PUT /userprofiles/:id/. A referral_code in the body activates it
// instead of updating fields.
func (h *ProfileHandler) Update(c *fiber.Ctx) error {
	id, err := profileID(c)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	var req UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	actor := middleware.GetPrincipal(c)

	if req.ReferralCode != "" {
		if err := h.svc.ActivateReferral(c.UserContext(), actor, id, req.ReferralCode); err != nil {
			return respondError(c, h.logger, err)
		}
		return c.JSON(fiber.Map{
			"message": service.ActivatedMessage,
		})
	}

	v, err := h.svc.Update(c.UserContext(), actor, id, service.UpdateProfileInput{PhoneNumber: req.PhoneNumber})
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(v)
}

// Patch handles PATCH /userprofiles/:id/ (administrators).
func (h *ProfileHandler) Patch(c *fiber.Ctx) error {
	id, err := profileID(c)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	var req UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	v, err := h.svc.Patch(c.UserContext(), middleware.GetPrincipal(c), id, service.UpdateProfileInput{PhoneNumber: req.PhoneNumber})
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(v)
}

// Create handles POST /userprofiles/ (administrators).
func (h *ProfileHandler) Create(c *fiber.Ctx) error {
	var req CreateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	v, err := h.svc.Create(c.UserContext(), middleware.GetPrincipal(c), req.PhoneNumber)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(v)
}

// Delete handles DELETE /userprofiles/:id/ (administrators).
func (h *ProfileHandler) Delete(c *fiber.Ctx) error {
	id, err := profileID(c)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	if err := h.svc.Delete(c.UserContext(), middleware.GetPrincipal(c), id); err != nil {
		return respondError(c, h.logger, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
