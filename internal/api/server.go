// Package api serves the typed read-only admin lookups through fuego, which
// also generates their OpenAPI description.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-fuego/fuego"
	"github.com/go-fuego/fuego/option"

	"github.com/diegod088/bot-bens11-sub000/internal/logger"
	"github.com/diegod088/bot-bens11-sub000/internal/models"
)

// SpecPath is where the generated OpenAPI document is served.
const SpecPath = "/api/v1/openapi.json"

// UsersRepository reads user accounts.
type UsersRepository interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	ListPremium(ctx context.Context, now time.Time, limit int) ([]models.User, error)
}

// PaymentsRepository reads captured payments.
type PaymentsRepository interface {
	GetByTransaction(ctx context.Context, provider models.PaymentProvider, txID string) (*models.Payment, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]models.Payment, error)
}

// Dependencies contains the stores the lookups read from.
type Dependencies struct {
	Users    UsersRepository
	Payments PaymentsRepository
}

// Server owns the fuego engine. It is never run on its own port; Handler
// is mounted under the admin router, which applies token auth.
type Server struct {
	fuego *fuego.Server
	deps  Dependencies
	now   func() time.Time
	log   *logger.Logger
}

// NewServer registers the lookup routes.
func NewServer(version string, deps Dependencies) *Server {
	f := fuego.NewServer()
	f.OpenAPI.Description().Info.Title = "bot admin API"
	f.OpenAPI.Description().Info.Description = "Account and payment lookups for support."
	f.OpenAPI.Description().Info.Version = version

	s := &Server{
		fuego: f,
		deps:  deps,
		now:   time.Now,
		log:   logger.Component("api"),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	users := fuego.Group(s.fuego, "/api/v1/users", option.Tags("Users"))

	fuego.Get(users, "/premium", s.listPremium,
		option.Summary("List premium users"),
		option.Description("Accounts with active premium, soonest expiry first"),
		option.Query("limit", "Maximum rows (default: 50, max: 500)"),
	)
	fuego.Get(users, "/{id}", s.getUser,
		option.Summary("Get user"),
		option.Description("One account by Telegram user id, with its recent payments"),
	)

	fuego.Get(s.fuego, "/api/v1/payments/{provider}/{transaction}", s.getPayment,
		option.Summary("Get payment"),
		option.Description("A captured payment by provider transaction id"),
		option.Tags("Payments"),
	)

	s.fuego.Mux.HandleFunc("GET "+SpecPath, s.spec)
}

// Handler serves the registered routes and the OpenAPI document.
func (s *Server) Handler() http.Handler {
	return s.fuego.Mux
}

func (s *Server) spec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.fuego.OpenAPI.Description()); err != nil {
		s.log.Warn().Err(err).Msg("api: encode openapi spec")
	}
}
