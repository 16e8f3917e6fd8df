package user

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/Kukaas/Chatty/internal/database"
	"github.com/Kukaas/Chatty/internal/middleware"
	"github.com/Kukaas/Chatty/internal/model"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AccountService struct {
	db *gorm.DB
}

func NewAccountService() *AccountService {
	return &AccountService{
		db: database.GetDB(),
	}
}

// Register 注册新用户
func (s *AccountService) Register(ctx context.Context, req *RegisterRequest) (string, error) {
	// 检查邮箱是否已注册
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("email = ?", req.Email).Count(&count).Error; err != nil {
		return "", err
	}
	if count > 0 {
		return "", errors.New("邮箱已注册")
	}

	// 哈希密码
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	// 创建新用户
	user := model.User{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Email:     req.Email,
		Password:  string(hashedPassword),
		AvatarURL: req.AvatarURL,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return "", err
	}

	return user.ID, nil
}

// Login 用户登录
func (s *AccountService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	// 查找用户
	var user model.User
	if err := s.db.WithContext(ctx).Where("email = ?", req.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("用户不存在")
		}
		log.Printf("查询用户时数据库错误: %v", err)
		return nil, err
	}

	// 验证密码
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, errors.New("密码错误")
	}

	// 生成JWT令牌
	token, err := middleware.GenerateToken(user.ID)
	if err != nil {
		log.Printf("生成令牌失败: %v", err)
		return nil, err
	}

	log.Printf("用户 %s (ID: %s) 登录成功", user.Email, user.ID)
	return &LoginResponse{
		UserID: user.ID,
		Token:  token,
	}, nil
}

// GetUserByID 通过ID获取用户
func (s *AccountService) GetUserByID(ctx context.Context, userID string) (*UserResponse, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("用户不存在")
		}
		return nil, err
	}

	return toUserResponse(&user), nil
}

// SearchUsers 按名称或邮箱搜索用户
func (s *AccountService) SearchUsers(ctx context.Context, query string) ([]*UserResponse, error) {
	var users []model.User
	result := s.db.WithContext(ctx).
		Where("name LIKE ? OR email LIKE ?", "%"+query+"%", "%"+query+"%").
		Limit(20).
		Find(&users)
	if result.Error != nil {
		return nil, result.Error
	}

	response := make([]*UserResponse, 0, len(users))
	for i := range users {
		response = append(response, toUserResponse(&users[i]))
	}
	return response, nil
}

func toUserResponse(u *model.User) *UserResponse {
	return &UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
		CreatedAt: u.CreatedAt,
	}
}
