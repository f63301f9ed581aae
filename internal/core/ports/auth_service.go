package ports

import (
	"context"

	"github.com/dtsoden/pmo-sub002/internal/core/domain"
)

type AuthService interface {
	Register(ctx context.Context, username, password, email string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (string, *domain.User, error)
}
