package holdings

import (
	holdingsvc "shard-exchange/internal/application/holdings"
	"shard-exchange/internal/application/ledger"
	offersvc "shard-exchange/internal/application/offers"
	"shard-exchange/internal/middleware"
	"shard-exchange/internal/pkg/request"
	"shard-exchange/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service *holdingsvc.Service
	Ledger  *ledger.Service
	Offers  *offersvc.Service
}

// GET /api/v1/holdings
func (h *Handlers) ViewHoldings(c *fiber.Ctx) error {
	data, err := h.Service.ViewHoldings(c.UserContext(), middleware.GetHolderID(c))
	if err != nil {
		return err
	}
	return response.List(c, "Holdings fetched successfully", data)
}

// GET /api/v1/holdings/transfers
func (h *Handlers) ViewTransfers(c *fiber.Ctx) error {
	data, err := h.Service.ViewTransfers(c.UserContext(), middleware.GetHolderID(c))
	if err != nil {
		return err
	}
	return response.List(c, "Transfers fetched successfully", data)
}

// GET /api/v1/holdings/:issuer_id/balance
func (h *Handlers) Balance(c *fiber.Ctx) error {
	issuerID, err := request.ParamUUID(c, "issuer_id")
	if err != nil {
		return err
	}
	bal, err := h.Ledger.GetBalance(c.UserContext(), issuerID, middleware.GetHolderID(c))
	if err != nil {
		return err
	}
	return response.Success(c, "Balance fetched successfully", bal, nil)
}

// POST /api/v1/holdings/:issuer_id/purchase-request
func (h *Handlers) TogglePurchaseRequest(c *fiber.Ctx) error {
	issuerID, err := request.ParamUUID(c, "issuer_id")
	if err != nil {
		return err
	}
	holding, err := h.Offers.TogglePurchaseRequest(c.UserContext(), issuerID, middleware.GetHolderID(c))
	if err != nil {
		return err
	}
	return response.Success(c, "Purchase request updated", fiber.Map{
		"issuer_id":        holding.IssuerID,
		"purchase_request": holding.PurchaseRequest,
	}, nil)
}

func (h *Handlers) Register(r fiber.Router) {
	r.Get("/", h.ViewHoldings)
	r.Get("/transfers", h.ViewTransfers)
	r.Get("/:issuer_id/balance", h.Balance)
	r.Post("/:issuer_id/purchase-request", h.TogglePurchaseRequest)
}
