package offers

import (
	offersvc "shard-exchange/internal/application/offers"
	"shard-exchange/internal/domain"
	"shard-exchange/internal/middleware"
	"shard-exchange/internal/pkg/request"
	"shard-exchange/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type Handlers struct {
	Service *offersvc.Service
}

type sellOfferBody struct {
	IssuerID uuid.UUID `json:"issuer_id"`
	offersvc.SellOfferInput
}

type sellOfferBatchBody struct {
	IssuerID uuid.UUID                 `json:"issuer_id"`
	Offers   []offersvc.SellOfferInput `json:"offers"`
}

type updateSellOfferBody struct {
	UnitPrice              decimal.Decimal `json:"unit_price"`
	AllowAlternativeOffers bool            `json:"allow_alternative_offers"`
}

type priceBody struct {
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type directOfferBody struct {
	IssuerID       uuid.UUID       `json:"issuer_id"`
	TargetHolderID uuid.UUID       `json:"target_holder_id"`
	Amount         int64           `json:"amount"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
}

// POST /api/v1/offers/sell
func (h *Handlers) CreateSellOffer(c *fiber.Ctx) error {
	var body sellOfferBody
	if err := request.Body(c, &body); err != nil {
		return err
	}
	if err := request.Required(body.IssuerID, "issuer_id"); err != nil {
		return err
	}
	offer, err := h.Service.ListerMakeSellOffer(c.UserContext(), middleware.GetHolderID(c), body.IssuerID, body.SellOfferInput)
	if err != nil {
		return err
	}
	return response.SuccessCreated(c, "Sell offer created successfully", offer, nil)
}

// POST /api/v1/offers/sell/batch
func (h *Handlers) CreateSellOffers(c *fiber.Ctx) error {
	var body sellOfferBatchBody
	if err := request.Body(c, &body); err != nil {
		return err
	}
	if err := request.Required(body.IssuerID, "issuer_id"); err != nil {
		return err
	}
	if len(body.Offers) == 0 {
		return errors.Wrap(domain.ErrInvalidInput, "offers must not be empty")
	}
	offers, err := h.Service.ListerMakeSellOffers(c.UserContext(), middleware.GetHolderID(c), body.IssuerID, body.Offers)
	if err != nil {
		return err
	}
	return response.SuccessCreated(c, "Sell offers created successfully", offers, fiber.Map{"count": len(offers)})
}

// PATCH /api/v1/offers/sell/:id
func (h *Handlers) UpdateSellOffer(c *fiber.Ctx) error {
	id, err := request.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var body updateSellOfferBody
	if err := request.Body(c, &body); err != nil {
		return err
	}
	offer, err := h.Service.UpdateSellOffer(c.UserContext(), middleware.GetHolderID(c), id, body.UnitPrice, body.AllowAlternativeOffers)
	if err != nil {
		return err
	}
	return response.Success(c, "Sell offer updated successfully", offer, nil)
}

// DELETE /api/v1/offers/sell/:id
func (h *Handlers) RemoveSellOffer(c *fiber.Ctx) error {
	id, err := request.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	offer, err := h.Service.RemoveSellOffer(c.UserContext(), middleware.GetHolderID(c), id)
	if err != nil {
		return err
	}
	return response.Success(c, "Sell offer removed successfully", offer, nil)
}

// GET /api/v1/offers/sell?issuer_id=
func (h *Handlers) OpenSellOffers(c *fiber.Ctx) error {
	issuerID, err := request.QueryUUID(c, "issuer_id")
	if err != nil {
		return err
	}
	offers, err := h.Service.OpenSellOffers(c.UserContext(), issuerID)
	if err != nil {
		return err
	}
	return response.List(c, "Sell offers fetched successfully", offers)
}

// POST /api/v1/offers/sell/:id/alternatives
func (h *Handlers) MakeAlternativeOffer(c *fiber.Ctx) error {
	id, err := request.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var body priceBody
	if err := request.Body(c, &body); err != nil {
		return err
	}
	offer, err := h.Service.MakeAlternativeOffer(c.UserContext(), middleware.GetHolderID(c), id, body.UnitPrice)
	if err != nil {
		return err
	}
	return response.SuccessCreated(c, "Alternative offer created successfully", offer, nil)
}

type alternativeBatchBody struct {
	Offers []offersvc.AlternativeOfferInput `json:"alternative_offers"`
}

// POST /api/v1/offers/alternatives
func (h *Handlers) MakeAlternativeOffers(c *fiber.Ctx) error {
	var body alternativeBatchBody
	if err := request.Body(c, &body); err != nil {
		return err
	}
	if len(body.Offers) == 0 {
		return errors.Wrap(domain.ErrInvalidInput, "alternative_offers must not be empty")
	}
	for _, o := range body.Offers {
		if err := request.Required(o.SellOfferID, "sell_offer_id"); err != nil {
			return err
		}
	}
	offers, err := h.Service.MakeAlternativeOffers(c.UserContext(), middleware.GetHolderID(c), body.Offers)
	if err != nil {
		return err
	}
	return response.SuccessCreated(c, "Alternative offers created successfully", offers, fiber.Map{"count": len(offers)})
}

// GET /api/v1/offers/alternatives?issuer_id=&sell_offer_id=
func (h *Handlers) AlternativeOffers(c *fiber.Ctx) error {
	issuerID, err := request.QueryUUID(c, "issuer_id")
	if err != nil {
		return err
	}
	sellOfferID, err := request.OptionalQueryUUID(c, "sell_offer_id")
	if err != nil {
		return err
	}
	offers, err := h.Service.AlternativeOffersForSeller(c.UserContext(), middleware.GetHolderID(c), issuerID, sellOfferID)
	if err != nil {
		return err
	}
	return response.List(c, "Alternative offers fetched successfully", offers)
}

// POST /api/v1/offers/alternatives/:id/accept
func (h *Handlers) AcceptAlternativeOffer(c *fiber.Ctx) error {
	id, err := request.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	rec, err := h.Service.AcceptAlternativeOffer(c.UserContext(), middleware.GetHolderID(c), id)
	if err != nil {
		return err
	}
	return response.Success(c, "Alternative offer accepted", rec, nil)
}

// POST /api/v1/offers/alternatives/:id/decline
func (h *Handlers) DeclineAlternativeOffer(c *fiber.Ctx) error {
	id, err := request.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	offer, err := h.Service.DeclineAlternativeOffer(c.UserContext(), middleware.GetHolderID(c), id)
	if err != nil {
		return err
	}
	return response.Success(c, "Alternative offer declined", offer, nil)
}

// POST /api/v1/offers/direct
func (h *Handlers) MakeDirectOffer(c *fiber.Ctx) error {
	var body directOfferBody
	if err := request.Body(c, &body); err != nil {
		return err
	}
	if err := request.Required(body.IssuerID, "issuer_id"); err != nil {
		return err
	}
	if err := request.Required(body.TargetHolderID, "target_holder_id"); err != nil {
		return err
	}
	offer, err := h.Service.MakeDirectOffer(c.UserContext(), middleware.GetHolderID(c), body.IssuerID, body.TargetHolderID, body.Amount, body.UnitPrice)
	if err != nil {
		return err
	}
	return response.SuccessCreated(c, "Direct offer created successfully", offer, nil)
}

// GET /api/v1/offers/direct
func (h *Handlers) PurchaseRequests(c *fiber.Ctx) error {
	offers, err := h.Service.PurchaseRequests(c.UserContext(), middleware.GetHolderID(c))
	if err != nil {
		return err
	}
	return response.List(c, "Purchase requests fetched successfully", offers)
}

// POST /api/v1/offers/direct/:id/accept
func (h *Handlers) AcceptDirectOffer(c *fiber.Ctx) error {
	id, err := request.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	rec, err := h.Service.AcceptDirectOffer(c.UserContext(), middleware.GetHolderID(c), id)
	if err != nil {
		return err
	}
	return response.Success(c, "Direct offer accepted", rec, nil)
}

// POST /api/v1/offers/direct/:id/decline
func (h *Handlers) DeclineDirectOffer(c *fiber.Ctx) error {
	id, err := request.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	offer, err := h.Service.DeclineDirectOffer(c.UserContext(), middleware.GetHolderID(c), id)
	if err != nil {
		return err
	}
	return response.Success(c, "Direct offer declined", offer, nil)
}

// GET /api/v1/offers/:id/events
func (h *Handlers) Events(c *fiber.Ctx) error {
	id, err := request.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	events, err := h.Service.Events(c.UserContext(), id)
	if err != nil {
		return err
	}
	return response.List(c, "Offer events fetched successfully", events)
}

// Register mounts the offer routes on a group that already runs RequireHolder.
func (h *Handlers) Register(r fiber.Router) {
	r.Get("/sell", h.OpenSellOffers)
	r.Post("/sell", h.CreateSellOffer)
	r.Post("/sell/batch", h.CreateSellOffers)
	r.Patch("/sell/:id", h.UpdateSellOffer)
	r.Delete("/sell/:id", h.RemoveSellOffer)
	r.Post("/sell/:id/alternatives", h.MakeAlternativeOffer)

	r.Get("/alternatives", h.AlternativeOffers)
	r.Post("/alternatives", h.MakeAlternativeOffers)
	r.Post("/alternatives/:id/accept", h.AcceptAlternativeOffer)
	r.Post("/alternatives/:id/decline", h.DeclineAlternativeOffer)

	r.Get("/direct", h.PurchaseRequests)
	r.Post("/direct", h.MakeDirectOffer)
	r.Post("/direct/:id/accept", h.AcceptDirectOffer)
	r.Post("/direct/:id/decline", h.DeclineDirectOffer)

	r.Get("/:id/events", h.Events)
}
