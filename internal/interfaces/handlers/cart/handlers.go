package cart

import (
	offersvc "shard-exchange/internal/application/offers"
	"shard-exchange/internal/domain"
	"shard-exchange/internal/middleware"
	"shard-exchange/internal/pkg/request"
	"shard-exchange/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Handlers struct {
	Service *offersvc.Service
}

type cartBody struct {
	SellOfferIDs []uuid.UUID `json:"sell_offer_ids"`
}

func parseCartBody(c *fiber.Ctx) ([]uuid.UUID, error) {
	var body cartBody
	if err := request.Body(c, &body); err != nil {
		return nil, err
	}
	if len(body.SellOfferIDs) == 0 {
		return nil, errors.Wrap(domain.ErrInvalidInput, "sell_offer_ids must not be empty")
	}
	return body.SellOfferIDs, nil
}

// GET /api/v1/cart
func (h *Handlers) View(c *fiber.Ctx) error {
	offers, err := h.Service.CartOffers(c.UserContext(), middleware.GetHolderID(c))
	if err != nil {
		return err
	}
	return response.List(c, "Cart fetched successfully", offers)
}

// POST /api/v1/cart
func (h *Handlers) Add(c *fiber.Ctx) error {
	ids, err := parseCartBody(c)
	if err != nil {
		return err
	}
	n, err := h.Service.AddOfferToCart(c.UserContext(), middleware.GetHolderID(c), ids)
	if err != nil {
		return err
	}
	return response.Success(c, "Offers added to cart", fiber.Map{"reserved": n, "requested": len(ids)}, nil)
}

// POST /api/v1/cart/remove
func (h *Handlers) Remove(c *fiber.Ctx) error {
	ids, err := parseCartBody(c)
	if err != nil {
		return err
	}
	n, err := h.Service.RemoveOfferFromCart(c.UserContext(), middleware.GetHolderID(c), ids)
	if err != nil {
		return err
	}
	return response.Success(c, "Offers removed from cart", fiber.Map{"released": n, "requested": len(ids)}, nil)
}

// POST /api/v1/cart/checkout
func (h *Handlers) Checkout(c *fiber.Ctx) error {
	ids, err := parseCartBody(c)
	if err != nil {
		return err
	}
	recs, err := h.Service.CheckoutCart(c.UserContext(), middleware.GetHolderID(c), ids)
	if err != nil {
		return err
	}
	return response.List(c, "Checkout completed", recs)
}

func (h *Handlers) Register(r fiber.Router) {
	r.Get("/", h.View)
	r.Post("/", h.Add)
	r.Post("/remove", h.Remove)
	r.Post("/checkout", h.Checkout)
}
