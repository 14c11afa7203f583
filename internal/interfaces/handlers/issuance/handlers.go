package issuance

import (
	issuancesvc "shard-exchange/internal/application/issuance"
	"shard-exchange/internal/middleware"
	"shard-exchange/internal/pkg/request"
	"shard-exchange/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type Handlers struct {
	Service *issuancesvc.Service
}

type registerBody struct {
	Name string `json:"name"`
}

type initBody struct {
	TotalAmount int64           `json:"total_amount"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Rating      string          `json:"rating"`
}

type ratingBody struct {
	Rating string `json:"rating"`
}

type priceBody struct {
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// POST /api/v1/issuers (the caller becomes the issuer's holder)
func (h *Handlers) RegisterIssuer(c *fiber.Ctx) error {
	var body registerBody
	if err := request.Body(c, &body); err != nil {
		return err
	}
	issuer, err := h.Service.RegisterIssuer(c.UserContext(), middleware.GetHolderID(c), body.Name)
	if err != nil {
		return err
	}
	return response.SuccessCreated(c, "Issuer registered successfully", issuer, nil)
}

// GET /api/v1/issuers/:id
func (h *Handlers) Get(c *fiber.Ctx) error {
	id, err := request.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	issuer, err := h.Service.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return response.Success(c, "Issuer fetched successfully", issuer, nil)
}

// GET /api/v1/issuers/:id/fixed-price
func (h *Handlers) FixedPrice(c *fiber.Ctx) error {
	id, err := request.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	price, err := h.Service.FixedPrice(c.UserContext(), id)
	if err != nil {
		return err
	}
	return response.Success(c, "Fixed price fetched successfully", fiber.Map{
		"issuer_id":   id,
		"fixed_price": price,
		"is_fixed":    !price.IsZero(),
	}, nil)
}

// GET /api/v1/issuers/:id/holders
func (h *Handlers) Holders(c *fiber.Ctx) error {
	id, err := request.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	holders, err := h.Service.Holders(c.UserContext(), id)
	if err != nil {
		return err
	}
	return response.List(c, "Holders fetched successfully", holders)
}

// POST /api/v1/admin/issuers/:id/init
func (h *Handlers) InitSupply(c *fiber.Ctx) error {
	id, err := request.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var body initBody
	if err := request.Body(c, &body); err != nil {
		return err
	}
	issuer, err := h.Service.InitIssuerSupply(c.UserContext(), id, body.TotalAmount, body.UnitPrice, body.Rating)
	if err != nil {
		return err
	}
	return response.SuccessCreated(c, "Issuer supply initialized", issuer, nil)
}

// PATCH /api/v1/admin/issuers/:id/rating
func (h *Handlers) AssignRating(c *fiber.Ctx) error {
	id, err := request.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var body ratingBody
	if err := request.Body(c, &body); err != nil {
		return err
	}
	issuer, err := h.Service.AssignRating(c.UserContext(), id, body.Rating)
	if err != nil {
		return err
	}
	return response.Success(c, "Rating assigned", issuer, nil)
}

// PATCH /api/v1/admin/issuers/:id/price
func (h *Handlers) AssignInitialPrice(c *fiber.Ctx) error {
	id, err := request.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var body priceBody
	if err := request.Body(c, &body); err != nil {
		return err
	}
	issuer, err := h.Service.AssignInitialPrice(c.UserContext(), id, body.UnitPrice)
	if err != nil {
		return err
	}
	return response.Success(c, "Initial price assigned", issuer, nil)
}

// Register mounts holder routes on public and key-guarded routes on admin.
func (h *Handlers) Register(public, admin fiber.Router) {
	public.Post("/", h.RegisterIssuer)
	public.Get("/:id", h.Get)
	public.Get("/:id/fixed-price", h.FixedPrice)
	public.Get("/:id/holders", h.Holders)

	admin.Post("/:id/init", h.InitSupply)
	admin.Patch("/:id/rating", h.AssignRating)
	admin.Patch("/:id/price", h.AssignInitialPrice)
}
