package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/solarclean/backoffice/config"
	"github.com/solarclean/backoffice/utils"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserDisabled       = errors.New("user is disabled")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidRole        = errors.New("role must be admin or technicien")
)

type User struct {
	ID        int        `gorm:"primary_key" json:"id"`
	Username  string     `gorm:"size:100;not null;uniqueIndex" json:"username"`
	Name      string     `gorm:"size:100" json:"nom"`
	Email     string     `gorm:"size:191" json:"email"`
	Password  string     `gorm:"size:255;not null" json:"-"`
	Role      UserRole   `gorm:"size:20;not null" json:"role"`
	IsActive  *bool      `gorm:"not null" json:"actif"`
	LastLogin *time.Time `json:"derniere_connexion"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username string   `json:"username" validate:"required,min=3,max=100"`
	Name     string   `json:"nom"`
	Email    string   `json:"email" validate:"omitempty,email"`
	Password string   `json:"password" validate:"required,min=8"`
	Role     UserRole `json:"role" validate:"required"`
}

type LoginInfo struct {
	Token    string   `json:"token"`
	Username string   `json:"username"`
	Name     string   `json:"nom"`
	Role     UserRole `json:"role"`
}

func (User) TableName() string {
	return "utilisateurs"
}

func Login(ctx context.Context, username string, password string) (*LoginInfo, error) {
	db := config.GetDB()
	var user User
	err := db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).Take(&user).Error
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := utils.ComparePassword(user.Password, password); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if user.IsActive == nil || !*user.IsActive {
		return nil, ErrUserDisabled
	}

	token, err := utils.JwtGenerate(user.ID, user.Username, string(user.Role))
	if err != nil {
		config.LogError(config.GetLogger(), "User", "Login", "generate token", user.Username, err)
		return nil, err
	}
	now := time.Now()
	if err := db.WithContext(ctx).Model(&user).Update("last_login", now).Error; err != nil {
		return nil, err
	}
	return &LoginInfo{
		Token:    token,
		Username: user.Username,
		Name:     user.Name,
		Role:     user.Role,
	}, nil
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if !input.Role.IsValid() {
		return nil, ErrInvalidRole
	}
	db := config.GetDB().WithContext(ctx)
	var count int64
	if err := db.Model(&User{}).Where("username = ?", input.Username).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrUsernameTaken
	}
	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}
	user := User{
		Username: strings.TrimSpace(input.Username),
		Name:     input.Name,
		Email:    strings.ToLower(strings.TrimSpace(input.Email)),
		Password: string(hashed),
		Role:     input.Role,
		IsActive: utils.NewTrue(),
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func GetUser(ctx context.Context, id int) (*User, error) {
	return utils.FetchModel[User](ctx, id)
}

func ListUsers(ctx context.Context) ([]*User, error) {
	var results []*User
	if err := config.GetDB().WithContext(ctx).Order("username").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func SetUserActive(ctx context.Context, id int, active bool) (*User, error) {
	db := config.GetDB().WithContext(ctx)
	var user User
	if err := db.First(&user, id).Error; err != nil {
		return nil, notFoundOr(err)
	}
	user.IsActive = &active
	if err := db.Model(&user).Update("is_active", active).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func ChangePassword(ctx context.Context, id int, oldPassword string, newPassword string) error {
	if len(newPassword) < 8 {
		return fmt.Errorf("%w (password: min)", utils.ErrValidation)
	}
	db := config.GetDB().WithContext(ctx)
	var user User
	if err := db.First(&user, id).Error; err != nil {
		return notFoundOr(err)
	}
	if err := utils.ComparePassword(user.Password, oldPassword); err != nil {
		return ErrInvalidCredentials
	}
	hashed, err := utils.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return db.Model(&user).Update("password", string(hashed)).Error
}
