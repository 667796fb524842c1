package service

import (
	"examhub_backend/internal/repository"
	"examhub_backend/internal/util"
)

// EntitlementService 考试额度。充值走外部计费系统，这里只查和扣。
type EntitlementService struct {
	UserRepo *repository.UserRepository
}

func NewEntitlementService(userRepo *repository.UserRepository) *EntitlementService {
	return &EntitlementService{UserRepo: userRepo}
}

func (s *EntitlementService) Available(userID uint) (int, error) {
	return s.UserRepo.GetCredits(userID)
}

// Consume 原子条件扣减；额度不足返回 ErrNoEntitlement，不产生任何副作用
func (s *EntitlementService) Consume(userID uint) error {
	ok, err := s.UserRepo.ConsumeCredit(userID)
	if err != nil {
		return err
	}
	if !ok {
		return util.ErrNoEntitlement
	}
	return nil
}

// Refund 创建 attempt 失败时把扣掉的额度补回去
func (s *EntitlementService) Refund(userID uint) error {
	return s.UserRepo.AddCredits(userID, 1)
}

func (s *EntitlementService) Grant(userID uint, n int) error {
	return s.UserRepo.AddCredits(userID, n)
}
