package api

import (
	"strconv"

	"github.com/go-fuego/fuego"

	"github.com/diegod088/bot-bens11-sub000/internal/models"
)

const (
	defaultListLimit  = 50
	maxListLimit      = 500
	userPaymentsShown = 20
)

// UserResponse is an account with its recent payments.
type UserResponse struct {
	User     *models.User     `json:"user"`
	Premium  bool             `json:"premium" description:"Premium is active right now"`
	Payments []models.Payment `json:"payments"`
}

func (s *Server) getUser(c fuego.ContextNoBody) (UserResponse, error) {
	id, err := strconv.ParseInt(c.PathParam("id"), 10, 64)
	if err != nil || id <= 0 {
		return UserResponse{}, fuego.BadRequestError{Detail: "invalid user id"}
	}

	u, err := s.deps.Users.GetByID(c.Context(), id)
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", id).Msg("api: user lookup failed")
		return UserResponse{}, fuego.InternalServerError{Detail: "lookup failed"}
	}
	if u == nil {
		return UserResponse{}, fuego.NotFoundError{Detail: "user not found"}
	}

	payments, err := s.deps.Payments.ListByUser(c.Context(), id, userPaymentsShown)
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", id).Msg("api: payments lookup failed")
		return UserResponse{}, fuego.InternalServerError{Detail: "lookup failed"}
	}
	if payments == nil {
		payments = []models.Payment{}
	}

	return UserResponse{
		User:     u,
		Premium:  u.IsPremium(s.now()),
		Payments: payments,
	}, nil
}

func (s *Server) listPremium(c fuego.ContextNoBody) ([]models.User, error) {
	limit := defaultListLimit
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fuego.BadRequestError{Detail: "invalid limit"}
		}
		limit = min(n, maxListLimit)
	}

	users, err := s.deps.Users.ListPremium(c.Context(), s.now(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("api: premium list failed")
		return nil, fuego.InternalServerError{Detail: "lookup failed"}
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

func (s *Server) getPayment(c fuego.ContextNoBody) (*models.Payment, error) {
	provider := models.PaymentProvider(c.PathParam("provider"))
	txID := c.PathParam("transaction")

	p, err := s.deps.Payments.GetByTransaction(c.Context(), provider, txID)
	if err != nil {
		s.log.Error().Err(err).Str("provider", string(provider)).Msg("api: payment lookup failed")
		return nil, fuego.InternalServerError{Detail: "lookup failed"}
	}
	if p == nil {
		return nil, fuego.NotFoundError{Detail: "payment not found"}
	}
	return p, nil
}
