package service

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dgrijalva/jwt-go"
	"github.com/koyif/cashdesk/internal/config"
	"github.com/koyif/cashdesk/internal/domain"
	"github.com/koyif/cashdesk/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

type UserRepository interface {
	CreateUser(login, hashedPassword string, gatewayUserID int64) (int64, error)
	User(login string) (*domain.User, error)
}

type UserService struct {
	config *config.Config
	repo   UserRepository
}

func NewUserService(repo UserRepository, config *config.Config) *UserService {
	return &UserService{
		repo:   repo,
		config: config,
	}
}

// AuthClaims carries the authenticated user id and the admin flag.
type AuthClaims struct {
	jwt.StandardClaims
	Admin bool `json:"admin"`
}

func (s *UserService) Register(login, password string, gatewayUserID int64) (string, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), 14)
	if err != nil {
		logger.Log.Warn("error while hashing password")
		return "", fmt.Errorf("error while hashing password: %w", err)
	}

	userID, err := s.repo.CreateUser(login, string(hashedPassword), gatewayUserID)
	if err != nil {
		return "", err
	}

	return generateJWTToken(userID, false, s.config.PrivateKey)
}

func (s *UserService) Login(login, password string) (string, error) {
	user, err := s.repo.User(login)
	if err != nil {
		if errors.Is(err, domain.ErrIncorrectCredentials) {
			logger.Log.Warn("incorrect login", logger.String("login", login))
		}
		return "", err
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password))
	if err != nil {
		logger.Log.Warn("incorrect password", logger.String("login", login))
		return "", domain.ErrIncorrectCredentials
	}

	return generateJWTToken(user.ID, user.IsAdmin, s.config.PrivateKey)
}

func generateJWTToken(userID int64, admin bool, privateKey string) (string, error) {
	claims := AuthClaims{
		StandardClaims: jwt.StandardClaims{
			Subject: strconv.FormatInt(userID, 10),
		},
		Admin: admin,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(privateKey))
	if err != nil {
		return "", fmt.Errorf("error while signing token: %w", err)
	}

	return signedToken, nil
}
